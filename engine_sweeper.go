package vhauth

import (
	"context"
	"strconv"
	"time"
)

// SweepResult counts the entries removed by one [Engine.SweepExpired] pass.
type SweepResult struct {
	Sessions    int
	RateEntries int
	CSRFTokens  int
}

// SweepExpired removes idle sessions, lapsed rate windows and expired CSRF
// tokens. Each store is swept even if an earlier one fails; the first error
// is returned with the partial counts.
func (e *Engine) SweepExpired(ctx context.Context) (SweepResult, error) {
	if e == nil {
		return SweepResult{}, ErrEngineNotReady
	}

	var (
		res      SweepResult
		firstErr error
		err      error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = storeError(err)
		}
	}

	res.Sessions, err = e.sessions.SweepExpired(ctx, e.config.Session.IdleTimeout)
	keep(err)
	res.RateEntries, err = e.limiter.Sweep(ctx)
	keep(err)
	res.CSRFTokens, err = e.csrf.Sweep(ctx)
	keep(err)

	e.metrics.Add(MetricSessionSwept, uint64(res.Sessions))
	e.metrics.Add(MetricRateEntriesSwept, uint64(res.RateEntries))
	e.metrics.Add(MetricCSRFSwept, uint64(res.CSRFTokens))

	if res.Sessions+res.RateEntries+res.CSRFTokens > 0 {
		e.logger.Debug().
			Int("sessions", res.Sessions).
			Int("rate_entries", res.RateEntries).
			Int("csrf_tokens", res.CSRFTokens).
			Msg("expired state swept")
		e.emitAudit(ctx, auditEventExpiredStateSwept, firstErr == nil, "", "", firstErr, func() map[string]string {
			return map[string]string{
				"sessions":     strconv.Itoa(res.Sessions),
				"rate_entries": strconv.Itoa(res.RateEntries),
				"csrf_tokens":  strconv.Itoa(res.CSRFTokens),
			}
		})
	}
	return res, firstErr
}

// StartSweeper runs SweepExpired every Session.SweepInterval until ctx is
// cancelled. The returned channel is closed once the loop has exited. Only
// one sweeper runs per engine; later calls return an already closed channel.
func (e *Engine) StartSweeper(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if e == nil || !e.sweeping.CompareAndSwap(false, true) {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer e.sweeping.Store(false)

		ticker := time.NewTicker(e.config.Session.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.SweepExpired(ctx); err != nil {
					e.logger.Warn().Err(err).Msg("periodic sweep failed")
				}
			}
		}
	}()
	return done
}
