package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/quote-cache/internal/adapter/storage"
	"github.com/rl1809/quote-cache/internal/adapter/upstream"
	"github.com/rl1809/quote-cache/internal/core/domain"
	"github.com/rl1809/quote-cache/internal/core/service"
	"github.com/rl1809/quote-cache/internal/logger"
)

const (
	keyPrefix = "stress_"
	symbol    = "STRESS"
	price     = "42.42"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis address")
	totalRequests := flag.Int("n", 50, "concurrent resolves")
	dedupe := flag.Bool("dedupe", false, "collapse concurrent misses into one upstream call")
	latency := flag.Duration("latency", 50*time.Millisecond, "simulated upstream latency")
	flag.Parse()

	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx, keyPrefix+symbol)

	// Fake stock service counting its calls
	var upstreamCalls atomic.Int32
	stocks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		time.Sleep(*latency)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"symbol": symbol, "currentPrice": price})
	}))
	defer stocks.Close()

	// Initialize adapters and resolver
	lg := logger.Discard()
	cache := storage.NewRedisAdapter(rdb, 2*time.Second, lg)
	provider := upstream.NewHTTPProvider(upstream.HTTPConfig{BaseURL: stocks.URL, Timeout: 5 * time.Second}, lg)

	var opts []service.ResolverOption
	if *dedupe {
		opts = append(opts, service.WithInflightDedupe(5*time.Second))
	}
	resolver := service.NewQuoteResolver(cache, provider, keyPrefix, time.Minute, lg, opts...)

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32
	var wrongPrice atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			q, err := resolver.ResolveQuote(ctx, symbol, "")
			switch {
			case err != nil:
				failCount.Add(1)
			case q.CurrentPrice.String() != price:
				wrongPrice.Add(1)
			default:
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Wrong Price:      %d\n", wrongPrice.Load())
	fmt.Printf("Upstream Calls:   %d\n", upstreamCalls.Load())
	fmt.Printf("Dedupe:           %v\n", *dedupe)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if successCount.Load() == int32(*totalRequests) {
		fmt.Println("PASS: every resolve returned the upstream price")
	} else {
		fmt.Println("FAIL: some resolves errored or returned a wrong price")
	}

	// Verify the cached entry
	data, err := rdb.Get(ctx, keyPrefix+symbol).Bytes()
	if err != nil {
		fmt.Printf("FAIL: no cache entry: %v\n", err)
		return
	}
	var cached domain.Quote
	if err := json.Unmarshal(data, &cached); err != nil || cached.CurrentPrice.String() != price {
		fmt.Printf("FAIL: unexpected cache entry %s\n", data)
		return
	}
	fmt.Printf("PASS: cache holds %s = %s\n", cached.Symbol, cached.CurrentPrice)

	// A second round must be served entirely from the cache
	before := upstreamCalls.Load()
	for i := 0; i < *totalRequests; i++ {
		resolver.ResolveQuote(ctx, symbol, "")
	}
	if upstreamCalls.Load() == before {
		fmt.Println("PASS: warm cache made no upstream calls")
	} else {
		fmt.Printf("FAIL: warm cache made %d upstream calls\n", upstreamCalls.Load()-before)
	}
}
