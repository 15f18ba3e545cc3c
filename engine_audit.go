package vhauth

import (
	"context"
	"errors"
	"maps"
)

const (
	auditEventIssueSuccess       = "issue_success"
	auditEventIssueFailure       = "issue_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventDeviceMismatch     = "device_mismatch"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventRateLimitReset     = "rate_limit_reset"
	auditEventCSRFRejected       = "csrf_rejected"
	auditEventSuspiciousRequest  = "suspicious_request"
	auditEventValidationRejected = "validation_rejected"
	auditEventExpiredStateSwept  = "expired_state_swept"
)

// AuditErrorCode is the stable error label written to audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrUserMismatch          AuditErrorCode = "session_user_mismatch"
	auditErrStaleVersion          AuditErrorCode = "stale_version"
	auditErrDeviceMismatch        AuditErrorCode = "device_mismatch"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrCSRFMissing           AuditErrorCode = "csrf_missing"
	auditErrCSRFInvalid           AuditErrorCode = "csrf_invalid"
	auditErrSuspicious            AuditErrorCode = "suspicious_input"
	auditErrValidation            AuditErrorCode = "validation_failed"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	sc, _ := SecurityContextFrom(ctx)
	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		RequestID: sc.RequestID,
		IP:        sc.IP,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, action RateAction, metadataBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"action": string(action),
		}
		if metadataBuilder != nil {
			maps.Copy(base, metadataBuilder())
		}
		return base
	})
}

// auditErrorCode checks the most specific causes first; verify and refresh
// errors wrap both a generic and a specific sentinel.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrDeviceMismatch):
		return auditErrDeviceMismatch
	case errors.Is(err, ErrTokenVersionStale):
		return auditErrStaleVersion
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionUserMismatch):
		return auditErrUserMismatch
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionCreationFailed),
		errors.Is(err, ErrInvalidIdentity):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCSRFMissing):
		return auditErrCSRFMissing
	case errors.Is(err, ErrCSRFInvalid):
		return auditErrCSRFInvalid
	case errors.Is(err, ErrSuspiciousRequest):
		return auditErrSuspicious
	case errors.Is(err, ErrValidationFailed):
		return auditErrValidation
	default:
		return auditErrInternal
	}
}
