package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/virtualhospital/vhauth"
)

type fakeSource struct {
	snapshot vhauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() vhauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: vhauth.MetricsSnapshot{
			Counters:   map[vhauth.MetricID]uint64{},
			Histograms: map[vhauth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: vhauth.MetricsSnapshot{
			Counters: map[vhauth.MetricID]uint64{
				vhauth.MetricVerifySuccess: 7,
				vhauth.MetricCSRFRejected:  2,
			},
			Histograms: map[vhauth.MetricID][]uint64{
				vhauth.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE vhauth_verify_success_total counter",
		"vhauth_verify_success_total 7",
		"vhauth_csrf_rejected_total 2",
		"vhauth_issue_success_total 0",
		`vhauth_verify_latency_seconds_bucket{le="0.00005"} 1`,
		`vhauth_verify_latency_seconds_bucket{le="+Inf"} 36`,
		"vhauth_verify_latency_seconds_count 36",
		"vhauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderFromEngine(t *testing.T) {
	cfg := vhauth.DefaultConfig()
	cfg.Token.BaseSecret = []byte("prometheus-test-secret-0123456789abcdef")
	cfg.Audit.Enabled = false
	engine, err := vhauth.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Issue(context.Background(), vhauth.UserClaims{ID: "u1"}, vhauth.IssueOptions{}); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	out := NewPrometheusExporter(engine).Render()
	if !strings.Contains(out, "vhauth_issue_success_total 1") || !strings.Contains(out, "vhauth_session_created_total 1") {
		t.Fatalf("expected issuance counters, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: vhauth.MetricsSnapshot{
			Counters:   map[vhauth.MetricID]uint64{vhauth.MetricLogout: 1},
			Histograms: map[vhauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: vhauth.MetricsSnapshot{
			Counters: map[vhauth.MetricID]uint64{
				vhauth.MetricIssueSuccess:       1000,
				vhauth.MetricVerifySuccess:      90000,
				vhauth.MetricVerifyFailure:      40,
				vhauth.MetricRefreshSuccess:     800,
				vhauth.MetricSessionCreated:     1000,
				vhauth.MetricSessionInvalidated: 20,
			},
			Histograms: map[vhauth.MetricID][]uint64{
				vhauth.MetricVerifyLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
