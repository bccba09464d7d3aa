package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/quote-cache/internal/adapter/storage"
	"github.com/rl1809/quote-cache/internal/core/domain"
	"github.com/rl1809/quote-cache/internal/core/service"
)

type fakeQuotes struct {
	mu          sync.Mutex
	prices      map[string]decimal.Decimal
	errs        map[string]error
	lastCred    domain.Credential
	invalidated []string
}

func (f *fakeQuotes) ResolveQuote(ctx context.Context, symbol string, cred domain.Credential, opts ...service.ResolveOption) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCred = cred

	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if err, ok := f.errs[sym]; ok {
		return domain.Quote{}, err
	}
	if p, ok := f.prices[sym]; ok {
		return domain.Quote{Symbol: sym, CurrentPrice: p}, nil
	}
	return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, sym)
}

func (f *fakeQuotes) Invalidate(ctx context.Context, symbol string) error {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, sym)
	return nil
}

type fakePortfolios struct {
	quotes   *fakeQuotes
	holdings map[string][]domain.Holding
	err      error
}

func (f *fakePortfolios) PortfolioValue(ctx context.Context, ownerID string, cred domain.Credential) (domain.AggregateResult, error) {
	if f.err != nil {
		return domain.AggregateResult{}, f.err
	}
	var positions []domain.PositionValue
	for _, h := range f.holdings[ownerID] {
		p := domain.PositionValue{Symbol: h.Symbol, Quantity: h.Quantity, Cost: h.Cost()}
		if q, err := f.quotes.ResolveQuote(ctx, h.Symbol, cred); err == nil {
			p.PriceAvailable = true
			p.CurrentPrice = q.CurrentPrice
			p.MarketValue = q.CurrentPrice.Mul(decimal.NewFromInt(h.Quantity))
		}
		p.ProfitLoss = p.MarketValue.Sub(p.Cost)
		positions = append(positions, p)
	}
	return domain.NewAggregateResult(positions), nil
}

func (f *fakePortfolios) Snapshot(ctx context.Context, symbols []string, cred domain.Credential) []service.SnapshotEntry {
	out := make([]service.SnapshotEntry, len(symbols))
	for i, s := range symbols {
		q, err := f.quotes.ResolveQuote(ctx, s, cred)
		out[i] = service.SnapshotEntry{Symbol: s, Quote: q, Err: err}
	}
	return out
}

type fakeAdmin struct {
	flushed int
}

func (f *fakeAdmin) FlushAll(ctx context.Context, confirm string) error {
	if confirm != storage.FlushAllConfirmation {
		return storage.ErrFlushNotConfirmed
	}
	f.flushed++
	return nil
}

func newFakes() (*fakeQuotes, *fakePortfolios) {
	quotes := &fakeQuotes{
		prices: map[string]decimal.Decimal{"XYZ": decimal.NewFromInt(7), "ABC": decimal.RequireFromString("10.5")},
		errs: map[string]error{
			"DOWN": fmt.Errorf("%w: timeout", domain.ErrUpstreamUnavailable),
			"GONE": fmt.Errorf("fetch GONE: %w", context.Canceled),
			"SLOW": fmt.Errorf("fetch SLOW: %w", context.DeadlineExceeded),
		},
	}
	portfolios := &fakePortfolios{
		quotes: quotes,
		holdings: map[string][]domain.Holding{
			"u1": {{ID: "h1", OwnerID: "u1", Symbol: "XYZ", Quantity: 10, AverageCost: decimal.NewFromInt(5)}},
		},
	}
	return quotes, portfolios
}
