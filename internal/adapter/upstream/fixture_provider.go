package upstream

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

type fixtureFile struct {
	Quotes map[string]string `yaml:"quotes"`
}

// FixtureProvider serves quotes from a static YAML file, for local runs
// without a stock service.
//
//	quotes:
//	  ABC: "10.50"
//	  XYZ: "7"
type FixtureProvider struct {
	quotes map[string]decimal.Decimal
}

func LoadFixtureProvider(path string) (*FixtureProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(f.Quotes))
	for sym, raw := range f.Quotes {
		symbol, err := domain.NormalizeSymbol(sym)
		if err != nil {
			return nil, fmt.Errorf("fixture: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("fixture price for %s: %w", symbol, err)
		}
		quotes[symbol] = price
	}
	return &FixtureProvider{quotes: quotes}, nil
}

func (p *FixtureProvider) FetchQuote(_ context.Context, symbol string, _ domain.Credential) (domain.Quote, error) {
	price, ok := p.quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
	}
	return domain.Quote{Symbol: symbol, CurrentPrice: price}, nil
}

// Quotes lists every fixture quote ordered by symbol.
func (p *FixtureProvider) Quotes() []domain.Quote {
	out := make([]domain.Quote, 0, len(p.quotes))
	for sym, price := range p.quotes {
		out = append(out, domain.Quote{Symbol: sym, CurrentPrice: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
