package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/quote-cache/internal/adapter/handler"
	"github.com/rl1809/quote-cache/internal/adapter/messaging"
	"github.com/rl1809/quote-cache/internal/adapter/storage"
	"github.com/rl1809/quote-cache/internal/adapter/upstream"
	"github.com/rl1809/quote-cache/internal/config"
	"github.com/rl1809/quote-cache/internal/core/service"
	"github.com/rl1809/quote-cache/internal/logger"
	"github.com/rl1809/quote-cache/internal/metrics"
	"github.com/rl1809/quote-cache/internal/port"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logCloser, err := logger.Init(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logCloser.Close()
	lg := slog.Default().With("service", cfg.Service.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		fatal(lg, "failed to open mysql", err)
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		fatal(lg, "failed to ping mysql", err)
	}
	holdings := storage.NewMySQLAdapter(db)
	if cfg.MySQL.EnsureSchema {
		if err := holdings.EnsureSchema(ctx); err != nil {
			fatal(lg, "failed to ensure holdings schema", err)
		}
	}
	lg.Info("connected to mysql")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize the quote cache. An unreachable Redis is not fatal: every
	// lookup degrades to a miss until it comes back.
	var (
		cache port.QuoteCache = storage.NoopCache{}
		admin port.CacheAdmin
		rdb   *redis.Client
	)
	if cfg.Cache.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable, serving from upstream until it recovers", "addr", cfg.Redis.Addr, "error", err)
		} else {
			lg.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
		cache = storage.NewRedisAdapter(rdb, cfg.Cache.OpTimeout, lg)
		admin = storage.NewRedisAdmin(rdb)
	} else {
		lg.Info("quote cache disabled")
	}

	provider, err := upstream.NewProvider(cfg.Upstream, lg)
	if err != nil {
		fatal(lg, "failed to build quote provider", err)
	}

	// Initialize services
	resolverOpts := []service.ResolverOption{service.WithResolverMetrics(m)}
	if cfg.Cache.DedupeInflight {
		resolverOpts = append(resolverOpts, service.WithInflightDedupe(cfg.Upstream.Timeout))
	}
	resolver := service.NewQuoteResolver(cache, provider, cfg.Cache.KeyPrefix, cfg.Cache.QuoteTTL, lg, resolverOpts...)
	aggregator := service.NewHoldingAggregator(resolver, holdings, service.AggregatorConfig{
		Concurrency: cfg.Aggregate.Concurrency,
		QuoteTTL:    cfg.Cache.QuoteTTL,
		SnapshotTTL: cfg.Cache.SnapshotTTL,
	}, lg)
	priceUpdates := service.NewPriceUpdateConsumer(cache, holdings, service.ConsumerConfig{
		KeyPrefix:       cfg.Cache.KeyPrefix,
		TTL:             cfg.Cache.QuoteTTL,
		EnforceOrdering: cfg.Events.EnforceOrdering,
	}, lg, m, service.WithWatchlists(holdings))

	var wg sync.WaitGroup

	// Start the price update consumer. If it gives up on an event the whole
	// process stops so the uncommitted offset is redelivered after restart.
	var consumer *messaging.KafkaConsumer
	if cfg.Kafka.Enabled {
		consumer = messaging.NewKafkaConsumer(messaging.NewReader(cfg.Kafka), priceUpdates, messaging.RetryPolicy{
			MaxRetries: cfg.Kafka.MaxRetries,
			Backoff:    cfg.Kafka.RetryBackoff,
		}, lg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			lg.Info("consuming price updates", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
			if err := consumer.Run(ctx); err != nil {
				lg.Error("price update consumer stopped", "error", err)
				stop()
			}
		}()
	}

	// Start gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterQuoteServiceServer(grpcServer, handler.NewGRPCHandler(resolver, aggregator, lg))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		fatal(lg, "failed to listen", err)
	}
	go func() {
		lg.Info("gRPC server listening", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			lg.Error("gRPC server error", "error", err)
		}
	}()

	// Start HTTP server
	httpHandler := handler.NewHTTPHandler(resolver, aggregator, admin, cfg.Admin.Token, lg)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler.NewRouter(httpHandler, reg),
	}
	go func() {
		lg.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			lg.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Warn("HTTP shutdown incomplete", "error", err)
	}
	lg.Info("HTTP server stopped")

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.GRPC.ShutdownTimeout):
		grpcServer.Stop()
	}
	lg.Info("gRPC server stopped")

	wg.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			lg.Warn("failed to close kafka reader", "error", err)
		}
		lg.Info("consumer stopped")
	}

	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	lg.Info("connections closed")
}

func fatal(lg *slog.Logger, msg string, err error) {
	lg.Error(msg, "error", err)
	os.Exit(1)
}
