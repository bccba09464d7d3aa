package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Holding struct {
	ID          string
	OwnerID     string
	Symbol      string
	Quantity    int64
	AverageCost decimal.Decimal
	// LastKnownPrice is patched by the price feed and only used for display
	// when a live quote cannot be resolved.
	LastKnownPrice decimal.Decimal
	LastPriceAt    *time.Time
}

// Cost is quantity times average cost.
func (h Holding) Cost() decimal.Decimal {
	return h.AverageCost.Mul(decimal.NewFromInt(h.Quantity))
}

// WatchlistItem is a symbol someone follows without holding it. Only
// CurrentPrice and PriceAt are maintained by the price feed.
type WatchlistItem struct {
	ID           string
	WatchlistID  string
	Symbol       string
	Note         string
	CurrentPrice decimal.Decimal
	PriceAt      *time.Time
}
