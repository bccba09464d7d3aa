package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rl1809/quote-cache/internal/core/domain"
	"github.com/rl1809/quote-cache/internal/metrics"
	"github.com/rl1809/quote-cache/internal/port"
)

// QuoteKey is the cache key of symbol under prefix.
func QuoteKey(prefix, symbol string) string {
	return prefix + symbol
}

// QuoteSource is what the aggregator needs from the resolver.
type QuoteSource interface {
	ResolveQuote(ctx context.Context, symbol string, cred domain.Credential, opts ...ResolveOption) (domain.Quote, error)
}

const defaultInflightTimeout = 10 * time.Second

type resolveOptions struct {
	ttl time.Duration
}

type ResolveOption func(*resolveOptions)

// WithTTL overrides the resolver's default TTL for the entry written on a miss.
func WithTTL(ttl time.Duration) ResolveOption {
	return func(o *resolveOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

type ResolverOption func(*QuoteResolver)

func WithResolverMetrics(m *metrics.Metrics) ResolverOption {
	return func(r *QuoteResolver) { r.metrics = m }
}

// WithInflightDedupe collapses concurrent misses for the same symbol and
// credential into one upstream call. The shared call is detached from every
// caller's cancellation and bounded by timeout instead.
func WithInflightDedupe(timeout time.Duration) ResolverOption {
	return func(r *QuoteResolver) {
		if timeout <= 0 {
			timeout = defaultInflightTimeout
		}
		r.inflight = &singleflight.Group{}
		r.inflightTimeout = timeout
	}
}

// QuoteResolver implements the cache-aside read path: cache first, upstream
// on miss, then repopulate.
type QuoteResolver struct {
	cache    port.QuoteCache
	provider port.QuoteProvider
	prefix   string
	ttl      time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics

	inflight        *singleflight.Group
	inflightTimeout time.Duration
}

func NewQuoteResolver(cache port.QuoteCache, provider port.QuoteProvider, prefix string, ttl time.Duration, log *slog.Logger, opts ...ResolverOption) *QuoteResolver {
	r := &QuoteResolver{
		cache:    cache,
		provider: provider,
		prefix:   prefix,
		ttl:      ttl,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveQuote returns the quote for symbol. Errors are domain.ErrInvalidSymbol,
// domain.ErrSymbolNotFound or whatever the provider reported; cache faults are
// never returned.
func (r *QuoteResolver) ResolveQuote(ctx context.Context, symbol string, cred domain.Credential, opts ...ResolveOption) (domain.Quote, error) {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	o := resolveOptions{ttl: r.ttl}
	for _, opt := range opts {
		opt(&o)
	}

	key := QuoteKey(r.prefix, symbol)
	if q, ok := r.fromCache(ctx, key, symbol); ok {
		return q, nil
	}

	if r.inflight == nil {
		return r.refresh(ctx, key, symbol, cred, o.ttl)
	}

	ch := r.inflight.DoChan(key+"\x00"+string(cred), func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.inflightTimeout)
		defer cancel()
		return r.refresh(shared, key, symbol, cred, o.ttl)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Quote{}, res.Err
		}
		return res.Val.(domain.Quote), nil
	case <-ctx.Done():
		return domain.Quote{}, ctx.Err()
	}
}

// Invalidate drops the cached quote of symbol.
func (r *QuoteResolver) Invalidate(ctx context.Context, symbol string) error {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	r.cache.Clear(ctx, QuoteKey(r.prefix, symbol))
	return nil
}

func (r *QuoteResolver) fromCache(ctx context.Context, key, symbol string) (domain.Quote, bool) {
	data, ok := r.cache.Get(ctx, key)
	if !ok {
		r.metrics.CacheLookup("miss")
		return domain.Quote{}, false
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil || q.Symbol != symbol {
		// An entry written by an older format would fail forever; drop it.
		r.log.Warn("discarding unreadable cache entry", "key", key, "error", err)
		r.metrics.CacheLookup("corrupt")
		r.cache.Clear(ctx, key)
		return domain.Quote{}, false
	}

	r.metrics.CacheLookup("hit")
	return q, true
}

func (r *QuoteResolver) refresh(ctx context.Context, key, symbol string, cred domain.Credential, ttl time.Duration) (domain.Quote, error) {
	q, err := r.provider.FetchQuote(ctx, symbol, cred)
	if err != nil {
		r.metrics.UpstreamCall(upstreamOutcome(err))
		r.log.Debug("upstream fetch failed", "symbol", symbol, "error", err)
		return domain.Quote{}, err
	}
	r.metrics.UpstreamCall("ok")
	q.Symbol = symbol

	data, err := json.Marshal(q)
	if err != nil {
		r.log.Warn("encode quote failed, skipping cache write", "symbol", symbol, "error", err)
		return q, nil
	}
	r.cache.Set(ctx, key, data, ttl)
	return q, nil
}

func upstreamOutcome(err error) string {
	if errors.Is(err, domain.ErrSymbolNotFound) {
		return "not_found"
	}
	return "error"
}
