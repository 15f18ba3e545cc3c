package vhauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/virtualhospital/vhauth/internal/rate"
)

// CheckRate records one attempt of action by (ip, identifier). A denied
// attempt returns the decision together with ErrRateLimited so callers can
// still read RetryAfterSeconds. identifier may be empty, in which case the
// window is keyed by IP alone.
func (e *Engine) CheckRate(ctx context.Context, action RateAction, ip, identifier string) (RateDecision, error) {
	if e == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	e.MaybeSweepRate(ctx)

	d, err := e.limiter.Check(ctx, action, ip, identifier)
	if err != nil {
		if errors.Is(err, rate.ErrUnknownAction) {
			return RateDecision{}, err
		}
		e.logger.Error().Err(err).Str("action", string(action)).Msg("rate limit backend failed")
		return RateDecision{}, storeError(err)
	}

	out := RateDecision{
		Allowed:           d.Allowed,
		Count:             d.Count,
		MaxAttempts:       d.MaxAttempts,
		ResetAt:           d.ResetAt,
		RetryAfterSeconds: d.RetryAfterSeconds(),
	}
	if d.Allowed {
		return out, nil
	}

	e.emitRateLimit(ctx, action, func() map[string]string {
		return map[string]string{
			"count":       fmt.Sprint(d.Count),
			"retry_after": fmt.Sprint(out.RetryAfterSeconds),
		}
	})
	return out, ErrRateLimited
}

// ResetRate clears the window for (ip, identifier, action), typically after a
// successful login.
func (e *Engine) ResetRate(ctx context.Context, ip, identifier string, action RateAction) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.limiter.Reset(ctx, ip, identifier, action); err != nil {
		if errors.Is(err, rate.ErrUnknownAction) {
			return err
		}
		return storeError(err)
	}
	e.metricInc(MetricRateLimitReset)
	e.emitAudit(ctx, auditEventRateLimitReset, true, "", "", nil, func() map[string]string {
		return map[string]string{"action": string(action)}
	})
	return nil
}

// RateStatus reports the window for (ip, identifier, action) without
// recording an attempt.
func (e *Engine) RateStatus(ctx context.Context, ip, identifier string, action RateAction) (RateStatus, error) {
	if e == nil {
		return RateStatus{}, ErrEngineNotReady
	}
	st, err := e.limiter.Status(ctx, ip, identifier, action)
	if err != nil && !errors.Is(err, rate.ErrUnknownAction) {
		return RateStatus{}, storeError(err)
	}
	return st, err
}

// RatePolicy returns the configured policy for action.
func (e *Engine) RatePolicy(action RateAction) (RatePolicy, bool) {
	if e == nil {
		return RatePolicy{}, false
	}
	p, ok := e.limiter.Policy(action)
	return RatePolicy{MaxAttempts: p.MaxAttempts, Window: p.Window}, ok
}

// MaybeSweepRate removes lapsed windows with probability
// RateLimit.SweepProbability. Redis expires windows on its own, so the sweep
// only does work for the in-memory backend.
func (e *Engine) MaybeSweepRate(ctx context.Context) {
	if e == nil || e.distributed || !e.chance(e.config.RateLimit.SweepProbability) {
		return
	}
	n, err := e.limiter.Sweep(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("rate window sweep failed")
		return
	}
	e.metrics.Add(MetricRateEntriesSwept, uint64(n))
}
