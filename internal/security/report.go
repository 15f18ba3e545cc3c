package security

import (
	"sort"
	"time"
)

// RateReport is one configured rate policy.
type RateReport struct {
	Action      string        `json:"action"`
	MaxAttempts int           `json:"maxAttempts"`
	Window      time.Duration `json:"window"`
}

type Report struct {
	ProductionMode        bool          `json:"productionMode"`
	SigningAlgorithm      string        `json:"signingAlgorithm"`
	AccessTTL             time.Duration `json:"accessTTL"`
	RefreshTTL            time.Duration `json:"refreshTTL"`
	SessionIdleTimeout    time.Duration `json:"sessionIdleTimeout"`
	VersionEnforced       bool          `json:"versionEnforced"`
	DeviceBindingOnVerify bool          `json:"deviceBindingOnVerify"`
	Distributed           bool          `json:"distributed"`
	RatePolicies          []RateReport  `json:"ratePolicies"`
	CSRFSingleUse         bool          `json:"csrfSingleUse"`
	CSRFTTL               time.Duration `json:"csrfTTL"`
	HSTS                  bool          `json:"hsts"`
	TrustProxy            bool          `json:"trustProxy"`
	AuditEnabled          bool          `json:"auditEnabled"`
	MetricsEnabled        bool          `json:"metricsEnabled"`
	Warnings              []string      `json:"warnings,omitempty"`
}

type ReportInput struct {
	ProductionMode        bool
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	SessionIdleTimeout    time.Duration
	Leeway                time.Duration
	VersionEnforced       bool
	DeviceBindingOnVerify bool
	Distributed           bool
	RatePolicies          map[string]RateReport
	CSRFSingleUse         bool
	CSRFTTL               time.Duration
	CSRFCookieSecure      bool
	HSTS                  bool
	TrustProxy            bool
	AuditEnabled          bool
	MetricsEnabled        bool
}

// BuildReport copies input into a Report and attaches a warning for every
// setting that weakens the deployment.
func BuildReport(input ReportInput) Report {
	policies := make([]RateReport, 0, len(input.RatePolicies))
	for action, p := range input.RatePolicies {
		p.Action = action
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Action < policies[j].Action })

	var warnings []string
	if !input.VersionEnforced {
		warnings = append(warnings, "token version is not enforced: superseded access and refresh tokens stay valid until expiry")
	}
	if !input.Distributed {
		warnings = append(warnings, "state is process-local: sessions, rate windows and csrf tokens are not shared between instances")
	}
	if !input.HSTS {
		warnings = append(warnings, "HSTS header disabled")
	}
	if input.TrustProxy {
		warnings = append(warnings, "client IP is taken from X-Forwarded-For; only enable behind a trusted proxy")
	}
	if !input.CSRFCookieSecure {
		warnings = append(warnings, "csrf session cookie is sent without the Secure attribute")
	}
	if input.Leeway > 0 {
		warnings = append(warnings, "token expiry leeway is "+input.Leeway.String())
	}
	if input.ProductionMode && !input.AuditEnabled {
		warnings = append(warnings, "audit dispatch disabled in production mode")
	}

	return Report{
		ProductionMode:        input.ProductionMode,
		SigningAlgorithm:      input.SigningAlgorithm,
		AccessTTL:             input.AccessTTL,
		RefreshTTL:            input.RefreshTTL,
		SessionIdleTimeout:    input.SessionIdleTimeout,
		VersionEnforced:       input.VersionEnforced,
		DeviceBindingOnVerify: input.DeviceBindingOnVerify,
		Distributed:           input.Distributed,
		RatePolicies:          policies,
		CSRFSingleUse:         input.CSRFSingleUse,
		CSRFTTL:               input.CSRFTTL,
		HSTS:                  input.HSTS,
		TrustProxy:            input.TrustProxy,
		AuditEnabled:          input.AuditEnabled,
		MetricsEnabled:        input.MetricsEnabled,
		Warnings:              warnings,
	}
}
