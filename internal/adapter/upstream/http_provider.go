package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

const stockPath = "/api/stocks/{symbol}"

type HTTPConfig struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// stockResponse is the stock service payload. Field matching is
// case-insensitive and currentPrice may be a number or a string. A missing or
// null currentPrice is invalid rather than zero.
type stockResponse struct {
	Symbol       string              `json:"symbol"`
	CurrentPrice decimal.NullDecimal `json:"currentPrice"`
}

// HTTPProvider fetches quotes from the stock service over HTTP, behind a
// circuit breaker.
type HTTPProvider struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

func NewHTTPProvider(cfg HTTPConfig, log *slog.Logger) *HTTPProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "quote-upstream",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Unknown symbols, rejected tokens and caller cancellations say
		// nothing about the health of the stock service.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrSymbolNotFound) ||
				errors.Is(err, domain.ErrUpstreamUnauthorized) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &HTTPProvider{client: client, breaker: breaker, log: log}
}

func (p *HTTPProvider) FetchQuote(ctx context.Context, symbol string, cred domain.Credential) (domain.Quote, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, symbol, cred)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Quote{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		return domain.Quote{}, err
	}
	return out.(domain.Quote), nil
}

func (p *HTTPProvider) fetch(ctx context.Context, symbol string, cred domain.Credential) (domain.Quote, error) {
	req := p.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol)
	if cred != "" {
		req.SetHeader("Authorization", string(cred))
	}

	resp, err := req.Get(stockPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Quote{}, fmt.Errorf("fetch %s: %w", symbol, ctxErr)
		}
		return domain.Quote{}, fmt.Errorf("%w: fetch %s: %v", domain.ErrUpstreamUnavailable, symbol, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		p.log.Warn("stock service rejected credentials", "symbol", symbol, "status", code)
		return domain.Quote{}, fmt.Errorf("%w: %w: status %d", domain.ErrUpstreamUnavailable, domain.ErrUpstreamUnauthorized, code)
	case code < 200 || code > 299:
		return domain.Quote{}, fmt.Errorf("%w: fetch %s: status %d", domain.ErrUpstreamUnavailable, symbol, code)
	}

	var body stockResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return domain.Quote{}, fmt.Errorf("%w: decode %s: %v", domain.ErrUpstreamUnavailable, symbol, err)
	}
	if !body.CurrentPrice.Valid {
		return domain.Quote{}, fmt.Errorf("%w: %s: missing currentPrice", domain.ErrUpstreamUnavailable, symbol)
	}

	quoteSymbol, err := domain.NormalizeSymbol(body.Symbol)
	if err != nil {
		quoteSymbol = symbol
	}
	return domain.Quote{Symbol: quoteSymbol, CurrentPrice: body.CurrentPrice.Decimal}, nil
}
