package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

type HoldingRepository interface {
	// ListHoldings returns every holding owned by ownerID
	ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error)

	// UpdateLastKnownPrice sets last_known_price on every holding of symbol.
	// A non-zero asOf skips rows already stamped with a later price.
	UpdateLastKnownPrice(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (int64, error)
}

type WatchlistRepository interface {
	// UpdateWatchlistPrice sets current_price on every watchlist item of
	// symbol, with the same asOf guard as UpdateLastKnownPrice.
	UpdateWatchlistPrice(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (int64, error)
}
