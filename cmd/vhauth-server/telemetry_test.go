package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestOTLPTarget(t *testing.T) {
	tests := []struct {
		endpoint string
		force    bool
		target   string
		insecure bool
		wantErr  bool
	}{
		{endpoint: "localhost:4317", target: "localhost:4317", insecure: true},
		{endpoint: "http://collector:4317/v1/metrics", target: "collector:4317", insecure: true},
		{endpoint: "https://collector.example:4317", target: "collector.example:4317"},
		{endpoint: "https://collector.example:4317", force: true, target: "collector.example:4317", insecure: true},
		{endpoint: "http://", wantErr: true},
	}
	for _, tt := range tests {
		target, insecure, err := otlpTarget(tt.endpoint, tt.force)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.endpoint)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tt.endpoint, err)
		}
		if target != tt.target || insecure != tt.insecure {
			t.Fatalf("%q: got %s insecure=%v, want %s insecure=%v", tt.endpoint, target, insecure, tt.target, tt.insecure)
		}
	}
}

func TestStartTelemetryDisabledWithoutEndpoint(t *testing.T) {
	stop, err := startTelemetry(context.Background(), " ", "vhauth-test", false, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("startTelemetry: %v", err)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestEngineMetricsReachMeterProvider(t *testing.T) {
	cfg := vhauth.DefaultConfig()
	cfg.Token.BaseSecret = []byte("telemetry-test-secret-0123456789abcdefgh")
	cfg.Audit.Enabled = false
	engine, err := vhauth.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Issue(context.Background(), vhauth.UserClaims{ID: "u1", Email: "kim@example.org"}, vhauth.IssueOptions{}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := serviceResource("vhauth-test")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	reader := sdkmetric.NewManualReader()
	stop, err := engineMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), engine)
	if err != nil {
		t.Fatalf("engineMetrics: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if name, ok := rm.Resource.Set().Value("service.name"); !ok || name.AsString() != "vhauth-test" {
		t.Fatalf("expected service.name resource, got %v", rm.Resource)
	}
	var issued int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "vhauth_issue_success_total" {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) == 1 {
				issued = sum.DataPoints[0].Value
			}
		}
	}
	if issued != 1 {
		t.Fatalf("expected one issued pair, got %d", issued)
	}

	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
