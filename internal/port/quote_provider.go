package port

import (
	"context"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

type QuoteProvider interface {
	// FetchQuote returns domain.ErrSymbolNotFound for unknown symbols and an
	// error wrapping domain.ErrUpstreamUnavailable for every other failure,
	// except that a cancelled or expired ctx yields an error wrapping
	// ctx.Err() so callers can tell their own abort from an upstream fault.
	FetchQuote(ctx context.Context, symbol string, cred domain.Credential) (domain.Quote, error)
}
