package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/quote-cache/internal/core/domain"
	"github.com/rl1809/quote-cache/internal/port"
)

type AggregatorConfig struct {
	// Concurrency bounds the quote lookups in flight per aggregate
	Concurrency int
	QuoteTTL    time.Duration
	SnapshotTTL time.Duration
}

// SnapshotEntry is one symbol of a list-level quote snapshot. Err is set when
// the quote could not be resolved.
type SnapshotEntry struct {
	Symbol string
	Quote  domain.Quote
	Err    error
}

// HoldingAggregator values holdings against resolved quotes.
type HoldingAggregator struct {
	quotes   QuoteSource
	holdings port.HoldingRepository
	cfg      AggregatorConfig
	log      *slog.Logger
}

func NewHoldingAggregator(quotes QuoteSource, holdings port.HoldingRepository, cfg AggregatorConfig, log *slog.Logger) *HoldingAggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &HoldingAggregator{quotes: quotes, holdings: holdings, cfg: cfg, log: log}
}

// ComputeAggregate never fails. A holding whose price cannot be resolved
// still adds its cost, but no market value.
func (a *HoldingAggregator) ComputeAggregate(ctx context.Context, holdings []domain.Holding, cred domain.Credential) domain.AggregateResult {
	positions := make([]domain.PositionValue, len(holdings))

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for i, h := range holdings {
		g.Go(func() error {
			positions[i] = a.value(ctx, h, cred)
			return nil
		})
	}
	_ = g.Wait()

	return domain.NewAggregateResult(positions)
}

// PortfolioValue loads the holdings of ownerID and aggregates them. Only a
// holdings store failure is returned.
func (a *HoldingAggregator) PortfolioValue(ctx context.Context, ownerID string, cred domain.Credential) (domain.AggregateResult, error) {
	holdings, err := a.holdings.ListHoldings(ctx, ownerID)
	if err != nil {
		return domain.AggregateResult{}, fmt.Errorf("list holdings of %s: %w", ownerID, err)
	}
	return a.ComputeAggregate(ctx, holdings, cred), nil
}

// Snapshot resolves a list of symbols with the longer snapshot TTL, the way
// a watchlist is rendered.
func (a *HoldingAggregator) Snapshot(ctx context.Context, symbols []string, cred domain.Credential) []SnapshotEntry {
	entries := make([]SnapshotEntry, len(symbols))

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			q, err := a.quotes.ResolveQuote(ctx, sym, cred, WithTTL(a.cfg.SnapshotTTL))
			entries[i] = SnapshotEntry{Symbol: sym, Quote: q, Err: err}
			if err == nil {
				entries[i].Symbol = q.Symbol
			}
			return nil
		})
	}
	_ = g.Wait()

	return entries
}

func (a *HoldingAggregator) value(ctx context.Context, h domain.Holding, cred domain.Credential) domain.PositionValue {
	p := domain.PositionValue{
		Symbol:       h.Symbol,
		Quantity:     h.Quantity,
		AverageCost:  h.AverageCost,
		CurrentPrice: decimal.Zero,
		DisplayPrice: h.LastKnownPrice,
		MarketValue:  decimal.Zero,
		Cost:         h.Cost(),
	}

	q, err := a.quotes.ResolveQuote(ctx, h.Symbol, cred, WithTTL(a.cfg.QuoteTTL))
	if err != nil {
		a.log.Warn("price unavailable, valuing holding at zero", "symbol", h.Symbol, "error", err)
		p.Unavailable = err
		p.ProfitLoss = p.MarketValue.Sub(p.Cost)
		return p
	}

	p.PriceAvailable = true
	p.CurrentPrice = q.CurrentPrice
	p.DisplayPrice = q.CurrentPrice
	p.MarketValue = q.CurrentPrice.Mul(decimal.NewFromInt(h.Quantity))
	p.ProfitLoss = p.MarketValue.Sub(p.Cost)
	return p
}
