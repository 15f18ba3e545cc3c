package csrf

import (
	"context"
	"crypto/subtle"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/virtualhospital/vhauth/internal"
)

// Config tunes a Guard.
type Config struct {
	TTL time.Duration
	// SingleUse deletes a token after its first successful validation.
	SingleUse bool
	// CleanupProbability is the chance that MaybeSweep runs a sweep.
	CleanupProbability float64
}

// Guard issues and validates tokens.
type Guard struct {
	store  Store
	config Config
	now    func() time.Time
	roll   func() float64
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRoll overrides the random source used by MaybeSweep.
func WithRoll(roll func() float64) Option {
	return func(g *Guard) {
		if roll != nil {
			g.roll = roll
		}
	}
}

// New creates a Guard. A nil store selects a MemoryStore; a zero TTL selects
// one hour.
func New(store Store, cfg Config, opts ...Option) *Guard {
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	g := &Guard{store: store, config: cfg, now: time.Now, roll: rand.Float64}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issue creates a token bound to sessionID and returns it with its expiry.
func (g *Guard) Issue(ctx context.Context, sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, errors.New("csrf: empty session id")
	}
	token, err := internal.RandomHex(internal.CSRFTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := g.now().Add(g.config.TTL)
	if err := g.store.Put(ctx, Entry{Token: token, SessionID: sessionID, ExpiresAt: expires}, g.config.TTL); err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Validate reports whether token was issued for sessionID and is unexpired.
// Expired tokens are evicted on sight.
func (g *Guard) Validate(ctx context.Context, token, sessionID string) (bool, error) {
	if token == "" || sessionID == "" {
		return false, nil
	}
	entry, ok, err := g.store.Get(ctx, token)
	if err != nil || !ok {
		return false, err
	}
	if g.now().After(entry.ExpiresAt) {
		return false, g.store.Delete(ctx, token)
	}
	if subtle.ConstantTimeCompare([]byte(entry.SessionID), []byte(sessionID)) != 1 {
		return false, nil
	}
	if g.config.SingleUse {
		if err := g.store.Delete(ctx, token); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Sweep removes expired tokens.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	return g.store.Sweep(ctx, g.now())
}

// MaybeSweep runs Sweep with probability CleanupProbability. ran reports
// whether it did.
func (g *Guard) MaybeSweep(ctx context.Context) (removed int, ran bool, err error) {
	if g.config.CleanupProbability <= 0 || g.roll() >= g.config.CleanupProbability {
		return 0, false, nil
	}
	removed, err = g.Sweep(ctx)
	return removed, true, err
}
