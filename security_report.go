package vhauth

import (
	"github.com/virtualhospital/vhauth/internal/rate"
	internalsecurity "github.com/virtualhospital/vhauth/internal/security"
)

// SecurityReport summarizes the effective security posture of an Engine.
type SecurityReport = internalsecurity.Report

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	policies := make(map[string]internalsecurity.RateReport, 4)
	for _, action := range []rate.Action{rate.ActionLogin, rate.ActionRegister, rate.ActionRefresh, rate.ActionAPI} {
		if p, ok := e.limiter.Policy(action); ok {
			policies[string(action)] = internalsecurity.RateReport{MaxAttempts: p.MaxAttempts, Window: p.Window}
		}
	}

	return internalsecurity.BuildReport(internalsecurity.ReportInput{
		ProductionMode:        e.config.ProductionMode,
		SigningAlgorithm:      "HS256/per-session",
		AccessTTL:             e.config.Token.AccessTTL,
		RefreshTTL:            e.config.Token.RefreshTTL,
		SessionIdleTimeout:    e.config.Session.IdleTimeout,
		Leeway:                e.config.Token.Leeway,
		VersionEnforced:       e.config.Token.EnforceVersion,
		DeviceBindingOnVerify: e.config.DeviceBinding.EnforceOnVerify,
		Distributed:           e.distributed,
		RatePolicies:          policies,
		CSRFSingleUse:         e.config.CSRF.SingleUse,
		CSRFTTL:               e.config.CSRF.TTL,
		CSRFCookieSecure:      e.config.CSRF.CookieSecure,
		HSTS:                  e.config.Pipeline.HSTS,
		TrustProxy:            e.config.Pipeline.TrustProxy,
		AuditEnabled:          e.config.Audit.Enabled,
		MetricsEnabled:        e.config.Metrics.Enabled,
	})
}
