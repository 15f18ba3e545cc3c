package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/virtualhospital/vhauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot vhauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() vhauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := vhauth.MetricsSnapshot{
		Counters:   make(map[vhauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[vhauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("vhauth-test")

	src := &fakeSource{
		snapshot: vhauth.MetricsSnapshot{
			Counters: map[vhauth.MetricID]uint64{
				vhauth.MetricVerifySuccess: 3,
			},
			Histograms: map[vhauth.MetricID][]uint64{
				vhauth.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
	if got := collectedInt64(t, rm, "vhauth_verify_success_total"); got != 3 {
		t.Fatalf("expected verify success 3, got %d", got)
	}
	if got := collectedBucket(t, rm, "vhauth_verify_latency_seconds_bucket", "+Inf"); got != 8 {
		t.Fatalf("expected cumulative +Inf bucket 8, got %d", got)
	}
	if got := collectedBucket(t, rm, "vhauth_verify_latency_seconds_bucket", "0.0001"); got != 2 {
		t.Fatalf("expected cumulative 0.0001 bucket 2, got %d", got)
	}
	if got := collectedInt64(t, rm, "vhauth_verify_latency_seconds_count"); got != 8 {
		t.Fatalf("expected sample count 8, got %d", got)
	}
	if got := collectedInt64(t, rm, "vhauth_audit_dropped_total"); got != 1 {
		t.Fatalf("expected audit dropped 1, got %d", got)
	}
}

func collectedInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) == 1 {
					return data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) == 1 {
					return data.DataPoints[0].Value
				}
			}
			t.Fatalf("metric %s has unexpected data %T", name, m.Data)
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func collectedBucket(t *testing.T, rm metricdata.ResourceMetrics, name, le string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has unexpected data %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("le"); ok && v.AsString() == le {
					return dp.Value
				}
			}
			t.Fatalf("metric %s has no le=%s point", name, le)
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("vhauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("vhauth-test")

	src := &fakeSource{
		snapshot: vhauth.MetricsSnapshot{
			Counters: map[vhauth.MetricID]uint64{
				vhauth.MetricVerifySuccess: 1,
			},
			Histograms: map[vhauth.MetricID][]uint64{
				vhauth.MetricVerifyLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[vhauth.MetricVerifySuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
