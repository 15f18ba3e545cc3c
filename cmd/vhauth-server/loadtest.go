package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/virtualhospital/vhauth"
)

type loadtestOptions struct {
	backend     string
	redisURL    string
	sessions    int
	concurrency int
	ops         int
}

func loadtestCmd() *cobra.Command {
	var opts loadtestOptions
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run concurrent issue, verify and refresh against an in-process engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("sessions, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.backend, "backend", "memory", "state backend: memory or redis")
	f.StringVar(&opts.redisURL, "redis-url", "", "redis url for --backend=redis; embedded miniredis when empty")
	f.IntVar(&opts.sessions, "sessions", 10000, "sessions to seed")
	f.IntVar(&opts.concurrency, "concurrency", 64, "concurrent workers")
	f.IntVar(&opts.ops, "ops", 50000, "operations per phase")
	return cmd
}

// seeded is one issued session. mu serializes refreshes so each worker
// presents the current refresh token.
type seeded struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	cfg := vhauth.DefaultConfig()
	cfg.Token.BaseSecret = []byte(secret)
	cfg.Audit.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	builder := vhauth.New().WithConfig(cfg).WithLogger(zerolog.Nop())
	switch opts.backend {
	case "memory":
	case "redis":
		client, cleanup, err := loadtestRedis(opts.redisURL, out)
		if err != nil {
			return err
		}
		defer cleanup()
		builder = builder.WithRedis(client)
	default:
		return fmt.Errorf("unknown backend %q", opts.backend)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]seeded, opts.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", opts.sessions)
	seedStats := runPhase(opts.sessions, opts.concurrency, func(_ *rand.Rand, i int) error {
		res, err := engine.Issue(ctx, vhauth.UserClaims{ID: fmt.Sprintf("user-%d", i%1000)}, vhauth.IssueOptions{})
		if err != nil {
			return err
		}
		states[i].access, states[i].refresh = res.AccessToken, res.RefreshToken
		return nil
	})

	verifyStats := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.Verify(ctx, token)
		return err
	})

	refreshStats := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.Refresh(ctx, s.refresh, "")
		if err != nil {
			return err
		}
		s.access, s.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "issue", seedStats)
	printStats(out, "verify", verifyStats)
	printStats(out, "refresh", refreshStats)
	return nil
}

func loadtestRedis(url string, out io.Writer) (redis.UniversalClient, func(), error) {
	if url != "" {
		client, err := newRedisClient(url)
		if err != nil {
			return nil, nil, err
		}
		fmt.Fprintf(out, "using redis at %s\n", client.Options().Addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase spreads ops calls of op over workers and records the latency of
// each one.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				if err := op(r, i); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	switch {
	case len(sorted) == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[(len(sorted)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
