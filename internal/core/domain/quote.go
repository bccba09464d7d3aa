package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the last known price of a symbol. It is replaced wholesale on
// every cache write and never mutated in place.
type Quote struct {
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	AsOf         *time.Time      `json:"asOf,omitempty"`
}

// NormalizeSymbol trims and upper-cases a ticker, returning ErrInvalidSymbol
// when nothing is left.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", ErrInvalidSymbol
	}
	return s, nil
}
