package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/quote-cache/internal/adapter/messaging"
	"github.com/rl1809/quote-cache/internal/adapter/storage"
	"github.com/rl1809/quote-cache/internal/adapter/upstream"
	"github.com/rl1809/quote-cache/internal/config"
	"github.com/rl1809/quote-cache/internal/core/domain"
)

type publishCmd struct {
	configPath string
	symbol     string
	price      string
	at         string
}

func (*publishCmd) Name() string     { return "publish" }
func (*publishCmd) Synopsis() string { return "publish one price update event" }
func (*publishCmd) Usage() string {
	return `pricefeed publish -symbol <sym> -price <price> [-at <RFC3339>] [-config <file>]

  Publishes a single PriceUpdateEvent keyed by symbol. -at defaults to now.
`
}

func (p *publishCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.configPath, "config", "", "TOML config file; kafka settings are read from it.")
	f.StringVar(&p.symbol, "symbol", "", "Ticker symbol.")
	f.StringVar(&p.price, "price", "", "New price, as a decimal string.")
	f.StringVar(&p.at, "at", "", "Event time in RFC3339. Defaults to now.")
}

func (p *publishCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	price, err := decimal.NewFromString(p.price)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing price: %v\n", err)
		return subcommands.ExitUsageError
	}
	at := time.Now().UTC()
	if p.at != "" {
		if at, err = time.Parse(time.RFC3339, p.at); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing -at: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	ev := domain.PriceUpdateEvent{Symbol: p.symbol, CurrentPrice: price, OccurredAtUTC: at.UTC()}
	return publish(ctx, p.configPath, ev)
}

type replayCmd struct {
	configPath  string
	fixturePath string
}

func (*replayCmd) Name() string     { return "replay" }
func (*replayCmd) Synopsis() string { return "publish every quote of a fixture file" }
func (*replayCmd) Usage() string {
	return `pricefeed replay -fixture <quotes.yaml> [-config <file>]

  Publishes one PriceUpdateEvent per quote of an upstream fixture file, all
  stamped with the current time.
`
}

func (p *replayCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.configPath, "config", "", "TOML config file; kafka settings are read from it.")
	f.StringVar(&p.fixturePath, "fixture", "", "Fixture file in the upstream fixture format.")
}

func (p *replayCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fixture, err := upstream.LoadFixtureProvider(p.fixturePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	now := time.Now().UTC()
	var events []domain.PriceUpdateEvent
	for _, q := range fixture.Quotes() {
		events = append(events, domain.PriceUpdateEvent{Symbol: q.Symbol, CurrentPrice: q.CurrentPrice, OccurredAtUTC: now})
	}
	return publish(ctx, p.configPath, events...)
}

func publish(ctx context.Context, configPath string, events ...domain.PriceUpdateEvent) subcommands.ExitStatus {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	publisher := messaging.NewPricePublisher(messaging.NewWriter(cfg.Kafka))
	defer publisher.Close()

	if err := publisher.Publish(ctx, events...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("published %d price update(s) to %s\n", len(events), cfg.Kafka.Topic)
	return subcommands.ExitSuccess
}

type seedCmd struct {
	configPath string
	owner      string
	symbol     string
	quantity   int64
	cost       string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "insert a holding into the holdings table" }
func (*seedCmd) Usage() string {
	return `pricefeed seed -owner <id> -symbol <sym> -qty <n> -cost <avg cost> [-config <file>]

  Creates the holdings table if needed and inserts one holding.
`
}

func (p *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.configPath, "config", "", "TOML config file; mysql settings are read from it.")
	f.StringVar(&p.owner, "owner", "", "Owner id.")
	f.StringVar(&p.symbol, "symbol", "", "Ticker symbol.")
	f.Int64Var(&p.quantity, "qty", 0, "Number of shares.")
	f.StringVar(&p.cost, "cost", "0", "Average cost per share.")
}

func (p *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbol, err := domain.NormalizeSymbol(p.symbol)
	if err != nil || p.owner == "" || p.quantity <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -owner, -symbol and a positive -qty are required.")
		return subcommands.ExitUsageError
	}
	cost, err := decimal.NewFromString(p.cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing cost: %v\n", err)
		return subcommands.ExitUsageError
	}

	cfg, err := config.Load(p.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	repo := storage.NewMySQLAdapter(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	h := domain.Holding{
		ID:          uuid.NewString(),
		OwnerID:     p.owner,
		Symbol:      symbol,
		Quantity:    p.quantity,
		AverageCost: cost,
	}
	if err := repo.InsertHolding(ctx, h); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("inserted holding %s\n", h.ID)
	return subcommands.ExitSuccess
}
