package vhauth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkVerifyMemory(b *testing.B) {
	engine := newBenchmarkEngine(b, false)

	issued, err := engine.Issue(context.Background(), alice, IssueOptions{})
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Verify(context.Background(), issued.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkVerifyRedis(b *testing.B) {
	engine := newBenchmarkEngine(b, true)

	issued, err := engine.Issue(context.Background(), alice, IssueOptions{})
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Verify(context.Background(), issued.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine := newBenchmarkEngine(b, false)

	issued, err := engine.Issue(context.Background(), alice, IssueOptions{})
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}
	refresh := issued.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := engine.Refresh(context.Background(), refresh, "")
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = pair.RefreshToken
	}
}

func BenchmarkCheckRate(b *testing.B) {
	engine := newBenchmarkEngine(b, false)
	engine.config.RateLimit.SweepProbability = 0

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.CheckRate(context.Background(), RateAPI, "10.0.0.1", "bench")
	}
}

func newBenchmarkEngine(b *testing.B, useRedis bool) *Engine {
	b.Helper()

	cfg := testConfig()
	builder := New().WithConfig(cfg)
	if useRedis {
		mr := miniredis.RunT(b)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.Cleanup(func() { _ = rdb.Close() })
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		b.Fatalf("build failed: %v", err)
	}
	b.Cleanup(engine.Close)
	return engine
}
