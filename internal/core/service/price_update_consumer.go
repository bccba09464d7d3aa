package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/quote-cache/internal/core/domain"
	"github.com/rl1809/quote-cache/internal/metrics"
	"github.com/rl1809/quote-cache/internal/port"
)

type ConsumerConfig struct {
	KeyPrefix string
	TTL       time.Duration
	// EnforceOrdering drops events older than the last one applied for the
	// same symbol, in the cache and in the holdings table.
	EnforceOrdering bool
}

// PriceUpdateConsumer writes every price event through to the quote cache,
// to the last known price of every holding of the symbol and, when
// configured, to the current price of every watchlist item of the symbol.
type PriceUpdateConsumer struct {
	cache      port.QuoteCache
	holdings   port.HoldingRepository
	watchlists port.WatchlistRepository
	cfg        ConsumerConfig
	log        *slog.Logger
	metrics    *metrics.Metrics
}

type ConsumerOption func(*PriceUpdateConsumer)

// WithWatchlists also patches watchlist items on every event.
func WithWatchlists(repo port.WatchlistRepository) ConsumerOption {
	return func(c *PriceUpdateConsumer) { c.watchlists = repo }
}

func NewPriceUpdateConsumer(cache port.QuoteCache, holdings port.HoldingRepository, cfg ConsumerConfig, log *slog.Logger, m *metrics.Metrics, opts ...ConsumerOption) *PriceUpdateConsumer {
	c := &PriceUpdateConsumer{
		cache:    cache,
		holdings: holdings,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnPriceUpdate applies one event. Every write sets absolute values, so
// redelivery is harmless. A cache failure is ignored; a holdings or
// watchlist failure is returned so the event is not acknowledged.
func (c *PriceUpdateConsumer) OnPriceUpdate(ctx context.Context, event domain.PriceUpdateEvent) error {
	if err := event.Validate(); err != nil {
		c.metrics.EventHandled("invalid")
		return err
	}

	key := QuoteKey(c.cfg.KeyPrefix, event.Symbol)
	data, err := json.Marshal(event.Quote())
	if err != nil {
		return fmt.Errorf("encode quote for %s: %w", event.Symbol, err)
	}

	var (
		asOf  time.Time
		fresh = true
	)
	if c.cfg.EnforceOrdering && !event.OccurredAtUTC.IsZero() {
		asOf = event.OccurredAtUTC
		fresh = c.cache.SetIfNewer(ctx, key, data, asOf, c.cfg.TTL)
	} else {
		c.cache.Set(ctx, key, data, c.cfg.TTL)
	}

	n, err := c.holdings.UpdateLastKnownPrice(ctx, event.Symbol, event.CurrentPrice, asOf)
	if err != nil {
		c.metrics.EventHandled("failed")
		return fmt.Errorf("update holdings for %s: %w", event.Symbol, err)
	}
	c.metrics.HoldingsUpdated(n)

	var items int64
	if c.watchlists != nil {
		items, err = c.watchlists.UpdateWatchlistPrice(ctx, event.Symbol, event.CurrentPrice, asOf)
		if err != nil {
			c.metrics.EventHandled("failed")
			return fmt.Errorf("update watchlists for %s: %w", event.Symbol, err)
		}
	}

	if !fresh {
		c.metrics.EventHandled("stale")
		c.log.Info("ignored out-of-order price update", "symbol", event.Symbol, "occurred_at", event.OccurredAtUTC)
		return nil
	}

	c.metrics.EventHandled("applied")
	c.log.Debug("applied price update", "symbol", event.Symbol, "price", event.CurrentPrice.String(), "holdings", n, "watchlist_items", items)
	return nil
}
