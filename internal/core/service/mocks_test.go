package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

// Mock QuoteCache
type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	stamps  map[string]time.Time
	down    bool
	sets    int
	clears  []string
}

func newMockCache() *mockCache {
	return &mockCache{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
		stamps:  make(map[string]time.Time),
	}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, false
	}
	v, ok := m.entries[key]
	return v, ok
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false
	}
	m.sets++
	m.entries[key] = value
	m.ttls[key] = ttl
	return true
}

func (m *mockCache) SetIfNewer(ctx context.Context, key string, value []byte, asOf time.Time, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return true
	}
	if stamp, ok := m.stamps[key]; ok && stamp.After(asOf) {
		return false
	}
	m.sets++
	m.entries[key] = value
	m.ttls[key] = ttl
	m.stamps[key] = asOf
	return true
}

func (m *mockCache) Clear(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears = append(m.clears, key)
	delete(m.entries, key)
}

func (m *mockCache) raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *mockCache) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// Mock QuoteProvider
type mockProvider struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	delay  time.Duration

	// honorCtx makes the delay abort when ctx is done
	honorCtx bool
	calls    atomic.Int32
	creds    []domain.Credential
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
	}
}

func (m *mockProvider) FetchQuote(ctx context.Context, symbol string, cred domain.Credential) (domain.Quote, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		if !m.honorCtx {
			time.Sleep(m.delay)
		} else {
			select {
			case <-time.After(m.delay):
			case <-ctx.Done():
				return domain.Quote{}, ctx.Err()
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = append(m.creds, cred)

	if err, ok := m.errs[symbol]; ok {
		return domain.Quote{}, err
	}
	price, ok := m.prices[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
	}
	return domain.Quote{Symbol: symbol, CurrentPrice: price}, nil
}

// Mock HoldingRepository
type mockHoldings struct {
	mu       sync.Mutex
	holdings map[string][]domain.Holding
	failList error
	failPut  error
	updates  int
}

func newMockHoldings(holdings ...domain.Holding) *mockHoldings {
	m := &mockHoldings{holdings: make(map[string][]domain.Holding)}
	for _, h := range holdings {
		m.holdings[h.OwnerID] = append(m.holdings[h.OwnerID], h)
	}
	return m
}

func (m *mockHoldings) ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	return append([]domain.Holding(nil), m.holdings[ownerID]...), nil
}

func (m *mockHoldings) UpdateLastKnownPrice(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return 0, m.failPut
	}
	m.updates++

	var n int64
	for owner, hs := range m.holdings {
		for i := range hs {
			h := &m.holdings[owner][i]
			if h.Symbol != symbol {
				continue
			}
			if !asOf.IsZero() && h.LastPriceAt != nil && h.LastPriceAt.After(asOf) {
				continue
			}
			h.LastKnownPrice = price
			stamp := asOf
			h.LastPriceAt = &stamp
			n++
		}
	}
	return n, nil
}

func (m *mockHoldings) bySymbol(symbol string) []domain.Holding {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Holding
	for _, hs := range m.holdings {
		for _, h := range hs {
			if h.Symbol == symbol {
				out = append(out, h)
			}
		}
	}
	return out
}

type mockWatchlists struct {
	mu    sync.Mutex
	items []domain.WatchlistItem
	fail  error
}

func (m *mockWatchlists) UpdateWatchlistPrice(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}

	var n int64
	for i := range m.items {
		item := &m.items[i]
		if item.Symbol != symbol {
			continue
		}
		if !asOf.IsZero() && item.PriceAt != nil && item.PriceAt.After(asOf) {
			continue
		}
		item.CurrentPrice = price
		stamp := asOf
		item.PriceAt = &stamp
		n++
	}
	return n, nil
}

func (m *mockWatchlists) price(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ID == id {
			return item.CurrentPrice
		}
	}
	return decimal.Zero
}

// Mock QuoteSource for aggregator tests
type mockQuotes struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
	mu     sync.Mutex
	ttls   []time.Duration
}

func (m *mockQuotes) ResolveQuote(ctx context.Context, symbol string, cred domain.Credential, opts ...ResolveOption) (domain.Quote, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}
	m.mu.Lock()
	m.ttls = append(m.ttls, o.ttl)
	m.mu.Unlock()

	if err, ok := m.errs[symbol]; ok {
		return domain.Quote{}, err
	}
	if price, ok := m.prices[symbol]; ok {
		return domain.Quote{Symbol: symbol, CurrentPrice: price}, nil
	}
	return domain.Quote{}, domain.ErrSymbolNotFound
}

var errBoom = errors.New("boom")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
