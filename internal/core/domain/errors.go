package domain

import "errors"

var (
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrUpstreamUnavailable = errors.New("upstream quote service unavailable")
	ErrInvalidEvent        = errors.New("invalid price update event")

	// ErrUpstreamUnauthorized is always joined with ErrUpstreamUnavailable.
	ErrUpstreamUnauthorized = errors.New("upstream rejected credentials")
)
