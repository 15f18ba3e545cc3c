package vhauth

import (
	"context"
	"strconv"
)

// ReportSuspicious records that request input at location matched an attack
// signature of the given category. The HTTP pipeline calls it before
// rejecting the request.
func (e *Engine) ReportSuspicious(ctx context.Context, category, location string) {
	if e == nil {
		return
	}
	e.metricInc(MetricSuspiciousRequest)
	e.emitAudit(ctx, auditEventSuspiciousRequest, false, "", "", ErrSuspiciousRequest, func() map[string]string {
		return map[string]string{
			"category": category,
			"location": location,
		}
	})
}

// ReportValidationRejected records a request whose fields failed their
// declared rules.
func (e *Engine) ReportValidationRejected(ctx context.Context, route string, failures int) {
	if e == nil {
		return
	}
	e.metricInc(MetricValidationRejected)
	e.emitAudit(ctx, auditEventValidationRejected, false, "", "", ErrValidationFailed, func() map[string]string {
		return map[string]string{
			"route":    route,
			"failures": strconv.Itoa(failures),
		}
	})
}
