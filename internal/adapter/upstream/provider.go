// Package upstream holds the QuoteProvider variants. The variant is picked
// once at startup by NewProvider.
package upstream

import (
	"fmt"
	"log/slog"

	"github.com/rl1809/quote-cache/internal/config"
	"github.com/rl1809/quote-cache/internal/port"
)

const (
	KindHTTP    = "http"
	KindFixture = "fixture"
)

func NewProvider(cfg config.UpstreamConfig, log *slog.Logger) (port.QuoteProvider, error) {
	switch cfg.Kind {
	case KindHTTP:
		return NewHTTPProvider(HTTPConfig{
			BaseURL:         cfg.BaseURL,
			Timeout:         cfg.Timeout,
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
		}, log), nil
	case KindFixture:
		return LoadFixtureProvider(cfg.FixturePath)
	default:
		return nil, fmt.Errorf("unknown upstream kind %q", cfg.Kind)
	}
}
