package vhauth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth/internal/audit"
	"github.com/virtualhospital/vhauth/internal/csrf"
	"github.com/virtualhospital/vhauth/internal/flows"
	"github.com/virtualhospital/vhauth/internal/rate"
	"github.com/virtualhospital/vhauth/jwt"
	"github.com/virtualhospital/vhauth/session"
)

// Engine is the token service plus the rate limiter and CSRF guard it is
// deployed with. Build it once with [Builder] and share it.
type Engine struct {
	config      Config
	logger      zerolog.Logger
	now         func() time.Time
	roll        func() float64
	sessions    *session.Registry
	tokens      *jwt.Manager
	limiter     *rate.Limiter
	csrf        *csrf.Guard
	metrics     *Metrics
	audit       *audit.Dispatcher
	flows       flows.Deps
	distributed bool
	sweeping    atomic.Bool
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the engine configuration with the base secret
// removed.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	cfg := cloneConfig(e.config)
	cfg.Token.BaseSecret = nil
	return cfg
}

// Logger returns the engine logger.
func (e *Engine) Logger() zerolog.Logger {
	if e == nil {
		return zerolog.Nop()
	}
	return e.logger
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	if e == nil || e.now == nil {
		return time.Now()
	}
	return e.now()
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, kv ...any) {
	e.logger.Warn().Fields(kv).Msg(msg)
}

func (e *Engine) rollFloat() float64 {
	if e.roll == nil {
		return rand.Float64()
	}
	return e.roll()
}

func (e *Engine) chance(p float64) bool {
	return p > 0 && e.rollFloat() < p
}

// Issue creates a session for an identity the caller has already verified
// and returns a signed access and refresh token bound to it.
func (e *Engine) Issue(ctx context.Context, claims UserClaims, opts IssueOptions) (*IssueResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	fingerprint := opts.DeviceFingerprint
	if fingerprint == "" {
		fingerprint = fingerprintFromContext(ctx)
	}

	res := flows.RunIssue(ctx, flows.IssueRequest{
		Identity: session.Identity{
			UserID:   claims.ID,
			Email:    claims.Email,
			Username: claims.Username,
			Provider: claims.Provider,
		},
		DeviceFingerprint: fingerprint,
		AccessTTL:         opts.ExpiresIn,
	}, e.flows.Issue)

	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureInvalidIdentity:
		e.metricInc(MetricIssueFailure)
		return nil, ErrInvalidIdentity
	default:
		e.metricInc(MetricIssueFailure)
		err := fmt.Errorf("%w: %w", ErrSessionCreationFailed, res.Err)
		if res.Failure == flows.IssueFailureSession {
			err = fmt.Errorf("%w: %w", ErrSessionCreationFailed, storeError(res.Err))
		}
		e.emitAudit(ctx, auditEventIssueFailure, false, claims.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricIssueSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventIssueSuccess, true, res.Session.UserID, res.Session.SessionID, nil, func() map[string]string {
		md := map[string]string{}
		if claims.Provider != "" {
			md["provider"] = claims.Provider
		}
		if fingerprint != "" {
			md["device_bound"] = "true"
		}
		return md
	})

	return &IssueResult{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		SessionID:    res.Session.SessionID,
	}, nil
}

// Verify checks an access token. The token is only trusted after the session
// it names is found, belongs to the same user, and the signature verifies
// under that session's derived secret. Every rejection wraps
// ErrTokenInvalid; the specific cause is wrapped alongside it and logged at
// debug level.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	res := flows.RunVerify(ctx, accessToken, fingerprintFromContext(ctx), e.flows.Verify)
	if res.Failure == flows.VerifyFailureNone {
		e.metricInc(MetricVerifySuccess)
		out := &AuthResult{
			UserID:       res.Claims.UserID,
			Email:        res.Claims.Email,
			Username:     res.Claims.Username,
			Provider:     res.Claims.Provider,
			SessionID:    res.Claims.SessionID,
			TokenVersion: res.Claims.TokenVersion,
		}
		if res.Claims.ExpiresAt != nil {
			out.ExpiresAt = res.Claims.ExpiresAt.Time
		}
		return out, nil
	}

	e.metricInc(MetricVerifyFailure)
	var cause error
	switch res.Failure {
	case flows.VerifyFailureStore:
		err := storeError(res.Err)
		e.logger.Error().Err(err).Msg("session lookup failed during verify")
		return nil, err
	case flows.VerifyFailureSessionNotFound:
		cause = ErrSessionNotFound
	case flows.VerifyFailureUserMismatch:
		cause = ErrSessionUserMismatch
	case flows.VerifyFailureStaleVersion:
		e.metricInc(MetricStaleVersionRejected)
		cause = ErrTokenVersionStale
	case flows.VerifyFailureDeviceMismatch:
		e.metricInc(MetricDeviceMismatch)
		cause = ErrDeviceMismatch
		e.emitAudit(ctx, auditEventDeviceMismatch, false, res.Session.UserID, res.Session.SessionID, ErrDeviceMismatch, func() map[string]string {
			return map[string]string{"operation": "verify"}
		})
	default:
		cause = res.Err
		if cause == nil {
			cause = errors.New("token rejected")
		}
	}

	e.logger.Debug().Err(cause).Int("failure", int(res.Failure)).Msg("access token rejected")
	return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, cause)
}

// Refresh consumes a refresh token and returns a new pair for the same
// session with an advanced token version. deviceFingerprint may be empty;
// when both it and the session's fingerprint are present and differ the
// refresh fails with ErrDeviceMismatch. All other rejections wrap
// ErrRefreshInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken, deviceFingerprint string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, deviceFingerprint, e.flows.Refresh)
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.SessionID, nil, func() map[string]string {
			return map[string]string{
				"previous_version": fmt.Sprint(res.PreviousVersion),
				"token_version":    fmt.Sprint(res.Session.TokenVersion),
			}
		})
		return &TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
	}

	e.metricInc(MetricRefreshFailure)
	var (
		err    error
		reason string
	)
	switch res.Failure {
	case flows.RefreshFailureStore:
		err, reason = storeError(res.Err), "store_unavailable"
	case flows.RefreshFailureDeviceMismatch:
		e.metricInc(MetricDeviceMismatch)
		e.emitAudit(ctx, auditEventDeviceMismatch, false, res.UserID, res.SessionID, ErrDeviceMismatch, func() map[string]string {
			return map[string]string{"operation": "refresh"}
		})
		return nil, ErrDeviceMismatch
	case flows.RefreshFailureMalformed:
		err, reason = fmt.Errorf("%w: %w", ErrRefreshInvalid, res.Err), "malformed"
	case flows.RefreshFailureSessionNotFound:
		err, reason = fmt.Errorf("%w: %w", ErrRefreshInvalid, ErrSessionNotFound), "session_not_found"
	case flows.RefreshFailureUserMismatch:
		err, reason = fmt.Errorf("%w: %w", ErrRefreshInvalid, ErrSessionUserMismatch), "user_mismatch"
	case flows.RefreshFailureSignature:
		err, reason = fmt.Errorf("%w: %w", ErrRefreshInvalid, res.Err), "signature"
	case flows.RefreshFailureStaleVersion:
		e.metricInc(MetricStaleVersionRejected)
		err, reason = fmt.Errorf("%w: %w", ErrRefreshInvalid, ErrTokenVersionStale), "stale_version"
	default:
		err, reason = fmt.Errorf("vhauth: sign refreshed tokens: %w", res.Err), "sign_failed"
	}

	e.logger.Debug().Err(err).Str("reason", reason).Str("session_id", res.SessionID).Msg("refresh rejected")
	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.SessionID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return nil, err
}

// Invalidate ends one session (logout). Ending an absent session reports
// false and no error.
func (e *Engine) Invalidate(ctx context.Context, sessionID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	removed, err := flows.RunLogout(ctx, sessionID, e.flows.Logout)
	if err != nil {
		return false, storeError(err)
	}
	e.metricInc(MetricLogout)
	if removed {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, func() map[string]string {
		return map[string]string{"removed": fmt.Sprint(removed)}
	})
	return removed, nil
}

// InvalidateAll ends every session of userID (logout everywhere) and
// returns how many were ended.
func (e *Engine) InvalidateAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := flows.RunLogoutAll(ctx, userID, e.flows.Logout)
	if err != nil {
		return n, storeError(err)
	}
	e.metricInc(MetricLogoutAll)
	e.metrics.Add(MetricSessionInvalidated, uint64(n))
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": fmt.Sprint(n)}
	})
	return n, nil
}

// ListSessions returns the live sessions of userID, most recently active
// first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sessions, err := flows.RunListSessions(ctx, userID, e.flows.Logout)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			SessionID:         s.SessionID,
			LastActivity:      s.LastActivity,
			DeviceFingerprint: s.DeviceFingerprint,
		})
	}
	return out, nil
}
