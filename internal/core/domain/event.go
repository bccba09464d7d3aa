package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PriceUpdateEvent struct {
	Symbol        string          `json:"symbol"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	OccurredAtUTC time.Time       `json:"occurredAtUtc"`
}

// Validate normalizes the symbol in place and rejects events that can never
// be applied.
func (e *PriceUpdateEvent) Validate() error {
	symbol, err := NormalizeSymbol(e.Symbol)
	if err != nil {
		return fmt.Errorf("%w: missing symbol", ErrInvalidEvent)
	}
	if e.CurrentPrice.IsNegative() {
		return fmt.Errorf("%w: negative price %s for %s", ErrInvalidEvent, e.CurrentPrice, symbol)
	}
	e.Symbol = symbol
	return nil
}

// Quote converts the event into the cached quote representation.
func (e PriceUpdateEvent) Quote() Quote {
	q := Quote{Symbol: e.Symbol, CurrentPrice: e.CurrentPrice}
	if !e.OccurredAtUTC.IsZero() {
		asOf := e.OccurredAtUTC.UTC()
		q.AsOf = &asOf
	}
	return q
}
