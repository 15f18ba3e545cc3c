package rate

import (
	"context"
	"fmt"
	"time"
)

// Backend stores window entries.
type Backend interface {
	// Hit records one attempt against key and returns the resulting entry.
	// When no live window exists a new one starts with count 1.
	Hit(ctx context.Context, key string, policy Policy, now time.Time) (Entry, error)
	// Get returns the live entry for key. ok is false when none exists or it
	// has lapsed.
	Get(ctx context.Context, key string, now time.Time) (entry Entry, ok bool, err error)
	Delete(ctx context.Context, key string) error
	// Sweep removes lapsed entries and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Limiter applies per-action policies over a Backend.
type Limiter struct {
	backend  Backend
	policies map[Action]Policy
	now      func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a Limiter. A nil backend selects a MemoryBackend; nil policies
// select DefaultPolicies.
func New(backend Backend, policies map[Action]Policy, opts ...Option) *Limiter {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	cp := make(map[Action]Policy, len(policies))
	for k, v := range policies {
		cp[k] = v
	}
	l := &Limiter{backend: backend, policies: cp, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key builds the counter key for (action, ip, identifier).
func Key(action Action, ip, identifier string) string {
	return string(action) + ":" + ip + ":" + identifier
}

// Policy returns the configured policy for action.
func (l *Limiter) Policy(action Action) (Policy, bool) {
	p, ok := l.policies[action]
	return p, ok
}

// Check records an attempt and decides whether it is allowed.
func (l *Limiter) Check(ctx context.Context, action Action, ip, identifier string) (Decision, error) {
	policy, ok := l.policies[action]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	now := l.now()
	entry, err := l.backend.Hit(ctx, Key(action, ip, identifier), policy, now)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:     !entry.Blocked,
		Count:       entry.Count,
		MaxAttempts: policy.MaxAttempts,
		ResetAt:     entry.ResetAt,
	}
	if entry.Blocked {
		d.RetryAfter = entry.ResetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d, nil
}

// Reset clears the window for (ip, identifier, action). Resetting a key with
// no window is a no-op.
func (l *Limiter) Reset(ctx context.Context, ip, identifier string, action Action) error {
	if _, ok := l.policies[action]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return l.backend.Delete(ctx, Key(action, ip, identifier))
}

// Status reports the current window without recording an attempt. With no
// live window it reports zero attempts and a reset time one window from now.
func (l *Limiter) Status(ctx context.Context, ip, identifier string, action Action) (Status, error) {
	policy, ok := l.policies[action]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	now := l.now()
	entry, found, err := l.backend.Get(ctx, Key(action, ip, identifier), now)
	if err != nil {
		return Status{}, err
	}
	if !found {
		return Status{MaxAttempts: policy.MaxAttempts, ResetTime: now.Add(policy.Window)}, nil
	}
	return Status{
		Attempts:    entry.Count,
		MaxAttempts: policy.MaxAttempts,
		ResetTime:   entry.ResetAt,
		Blocked:     entry.Blocked || entry.Count > policy.MaxAttempts,
	}, nil
}

// Sweep removes lapsed windows.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.backend.Sweep(ctx, l.now())
}
