package vhauth

import (
	"context"
	"time"
)

// IssueCSRF mints a CSRF token bound to sessionID.
func (e *Engine) IssueCSRF(ctx context.Context, sessionID string) (string, time.Time, error) {
	if e == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return "", time.Time{}, ErrCSRFSessionRequired
	}
	e.MaybeSweepCSRF(ctx)

	token, expiresAt, err := e.csrf.Issue(ctx, sessionID)
	if err != nil {
		return "", time.Time{}, storeError(err)
	}
	e.metricInc(MetricCSRFIssued)
	return token, expiresAt, nil
}

// ValidateCSRF checks that token was issued for sessionID and has not
// expired. It returns ErrCSRFMissing for an empty token and ErrCSRFInvalid
// for any other rejection.
func (e *Engine) ValidateCSRF(ctx context.Context, token, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		e.rejectCSRF(ctx, sessionID, ErrCSRFMissing)
		return ErrCSRFMissing
	}

	ok, err := e.csrf.Validate(ctx, token, sessionID)
	if err != nil {
		return storeError(err)
	}
	if !ok {
		e.rejectCSRF(ctx, sessionID, ErrCSRFInvalid)
		return ErrCSRFInvalid
	}
	return nil
}

func (e *Engine) rejectCSRF(ctx context.Context, sessionID string, err error) {
	e.metricInc(MetricCSRFRejected)
	e.emitAudit(ctx, auditEventCSRFRejected, false, "", sessionID, err, nil)
}

// MaybeSweepCSRF removes expired tokens with probability
// CSRF.CleanupProbability.
func (e *Engine) MaybeSweepCSRF(ctx context.Context) {
	if e == nil || e.distributed {
		return
	}
	n, ran, err := e.csrf.MaybeSweep(ctx)
	if !ran {
		return
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("csrf token sweep failed")
		return
	}
	e.metrics.Add(MetricCSRFSwept, uint64(n))
}
