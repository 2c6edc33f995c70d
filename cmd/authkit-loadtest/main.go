// Command authkit-loadtest seeds browser sessions through an engine backed
// by Redis and measures session validation and rate limit throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ramppy/authkit"
	authotel "github.com/ramppy/authkit/metrics/export/otel"
	"github.com/ramppy/authkit/record/memory"
)

func main() {
	var (
		clients     = flag.Int("clients", 20000, "number of browser sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (validate + rate limit)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, AUTHKIT_REDIS_ADDR or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("AUTHKIT_REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := authkit.DefaultConfig()
	cfg.Session.SessionPrefix = *prefix + ":as"
	cfg.Session.ProfilePrefix = *prefix + ":ap"
	cfg.RateLimit.RedisPrefix = *prefix + ":rl"
	engine, err := authkit.New().
		WithConfig(cfg).
		WithRecordStore(memory.New()).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(ctx)
	exporter, err := authotel.NewExporter(provider.Meter("authkit-loadtest"), engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics exporter: %v\n", err)
		os.Exit(1)
	}
	defer exporter.Close()

	fmt.Printf("seeding %d sessions...\n", *clients)
	startSeed := time.Now()
	for i := 0; i < *clients; i++ {
		profile := authkit.Profile{
			Name:  fmt.Sprintf("user %d", i),
			Email: fmt.Sprintf("user%d@loadtest.local", i),
		}
		if _, err := engine.CreateSession(clientContext(ctx, i), fmt.Sprintf("u%d", i), profile); err != nil {
			fmt.Fprintf(os.Stderr, "create session failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) bool {
		return engine.ValidateSession(clientContext(ctx, r.Intn(*clients)))
	})
	rule := authkit.RateRule{MaxAttempts: *ops, Window: time.Hour}
	limitStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) bool {
		id := fmt.Sprintf("user%d@loadtest.local", r.Intn(*clients))
		return engine.CheckRateLimit(ctx, authkit.ActionLogin, id, rule) == nil
	})

	fmt.Println("---- results ----")
	validateStats.print("validate")
	limitStats.print("rate-limit")

	if err := printMetrics(ctx, reader); err != nil {
		fmt.Fprintf(os.Stderr, "collect metrics: %v\n", err)
	}
}

// printMetrics collects once and prints every non-zero counter.
func printMetrics(ctx context.Context, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return err
	}
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if dp.Value != 0 {
					lines = append(lines, fmt.Sprintf("%s=%d", m.Name, dp.Value))
				}
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}

func clientContext(ctx context.Context, i int) context.Context {
	return authkit.WithClient(ctx, authkit.Client{
		ID: fmt.Sprintf("client-%d", i),
		Env: authkit.Environment{
			UserAgent:      "authkit-loadtest/1.0",
			Language:       "en-US",
			ScreenWidth:    1920,
			ScreenHeight:   1080,
			ColorDepth:     24,
			TimezoneOffset: (i % 24) * 60,
			Platform:       "Linux x86_64",
		},
	})
}

// runPhase runs ops calls of op across concurrency workers. op reports
// whether the call succeeded. Each worker keeps its own samples.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) bool) phaseResult {
	var (
		wg       sync.WaitGroup
		cursor   atomic.Int64
		failures atomic.Int64
		samples  = make([][]time.Duration, concurrency)
	)

	start := time.Now()
	for w := range samples {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*seed))
			own := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				if !op(r, i) {
					failures.Add(1)
				}
				own = append(own, time.Since(t0))
			}
			samples[w] = own
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	all := make([]time.Duration, 0, ops)
	for _, own := range samples {
		all = append(all, own...)
	}
	return summarize(elapsed, all, failures.Load())
}

type phaseResult struct {
	elapsed  time.Duration
	ops      int
	failures int64
	rate     float64
	p50      time.Duration
	p90      time.Duration
	p99      time.Duration
	max      time.Duration
}

func summarize(elapsed time.Duration, samples []time.Duration, failures int64) phaseResult {
	res := phaseResult{elapsed: elapsed, ops: len(samples), failures: failures}
	if len(samples) == 0 {
		return res
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	res.rate = float64(len(samples)) / elapsed.Seconds()
	res.p50 = quantile(samples, 0.50)
	res.p90 = quantile(samples, 0.90)
	res.p99 = quantile(samples, 0.99)
	res.max = samples[len(samples)-1]
	return res
}

// quantile expects sorted samples.
func quantile(sorted []time.Duration, q float64) time.Duration {
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func (r phaseResult) print(name string) {
	us := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	fmt.Printf("%-10s ops=%d failures=%d elapsed=%s rate=%.0f/s p50=%s p90=%s p99=%s max=%s\n",
		name, r.ops, r.failures, r.elapsed.Round(time.Millisecond), r.rate,
		us(r.p50), us(r.p90), us(r.p99), us(r.max))
}
