package security

import (
	"strings"
	"testing"
	"time"
)

func TestBuildReportSortsPolicies(t *testing.T) {
	r := BuildReport(ReportInput{
		VersionEnforced:  true,
		Distributed:      true,
		HSTS:             true,
		CSRFCookieSecure: true,
		AuditEnabled:     true,
		RatePolicies: map[string]RateReport{
			"register": {MaxAttempts: 3, Window: time.Hour},
			"api":      {MaxAttempts: 100, Window: time.Hour},
			"login":    {MaxAttempts: 5, Window: 15 * time.Minute},
		},
	})

	if len(r.RatePolicies) != 3 {
		t.Fatalf("expected 3 policies, got %d", len(r.RatePolicies))
	}
	want := []string{"api", "login", "register"}
	for i, p := range r.RatePolicies {
		if p.Action != want[i] {
			t.Fatalf("policy %d: expected %q, got %q", i, want[i], p.Action)
		}
	}
	if r.RatePolicies[1].MaxAttempts != 5 {
		t.Fatalf("expected login max 5, got %d", r.RatePolicies[1].MaxAttempts)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestBuildReportWarnsOnWeakSettings(t *testing.T) {
	r := BuildReport(ReportInput{
		ProductionMode: true,
		TrustProxy:     true,
		Leeway:         30 * time.Second,
	})

	joined := strings.Join(r.Warnings, "\n")
	for _, want := range []string{"version", "process-local", "HSTS", "X-Forwarded-For", "Secure", "leeway", "audit"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected a warning mentioning %q, got:\n%s", want, joined)
		}
	}
}
