package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/virtualhospital/vhauth/internal"
)

// Identity is the caller-verified identity a session is created for.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Provider string
}

// Registry manages the session lifecycle on top of a [Store].
//
// Read paths report absence as a boolean, never as an error; errors from the
// registry always mean the backing store failed or a caller-supplied check
// rejected the update.
type Registry struct {
	store Store
	now   func() time.Time
	newID func() (string, error)
}

// RegistryOption customizes a [Registry].
type RegistryOption func(*Registry)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() (string, error)) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry returns a registry over store. A nil store selects a fresh
// [MemoryStore].
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	r := &Registry{
		store: store,
		now:   time.Now,
		newID: internal.NewSessionID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the backing store.
func (r *Registry) Store() Store {
	return r.store
}

// Create registers a new session for id and returns it. The token version
// and last activity start at the current instant.
func (r *Registry) Create(ctx context.Context, id Identity, deviceFingerprint string) (*Session, error) {
	if id.UserID == "" {
		return nil, errors.New("session: empty user id")
	}
	sid, err := r.newID()
	if err != nil {
		return nil, err
	}

	now := r.now()
	sess := &Session{
		SessionID:         sid,
		UserID:            id.UserID,
		Email:             id.Email,
		Username:          id.Username,
		Provider:          id.Provider,
		TokenVersion:      NextVersion(now, 0),
		DeviceFingerprint: deviceFingerprint,
		CreatedAt:         now,
		LastActivity:      now,
	}
	if err := r.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get looks up a session. ok is false when it does not exist.
func (r *Registry) Get(ctx context.Context, sessionID string) (sess *Session, ok bool, err error) {
	sess, err = r.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return sess, true, nil
}

// Touch records activity on a session. Absent sessions are ignored.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	_, err := r.store.Update(ctx, sessionID, func(s *Session) error {
		s.LastActivity = r.now()
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// BumpVersion advances the session's token version and returns the new
// value. ok is false when the session does not exist.
func (r *Registry) BumpVersion(ctx context.Context, sessionID string) (version int64, ok bool, err error) {
	sess, err := r.store.Update(ctx, sessionID, func(s *Session) error {
		s.TokenVersion = NextVersion(r.now(), s.TokenVersion)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return sess.TokenVersion, true, nil
}

// Rotate applies check to the current session state and, if it passes, bumps
// the token version and records activity in the same atomic update. It is the
// primitive behind refresh. ok is false when the session does not exist;
// errors returned by check are passed through unchanged.
func (r *Registry) Rotate(ctx context.Context, sessionID string, check func(*Session) error) (sess *Session, ok bool, err error) {
	sess, err = r.store.Update(ctx, sessionID, func(s *Session) error {
		if check != nil {
			if err := check(s); err != nil {
				return err
			}
		}
		now := r.now()
		s.TokenVersion = NextVersion(now, s.TokenVersion)
		s.LastActivity = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return sess, true, nil
}

// Delete removes a session. Deleting an absent session returns false.
func (r *Registry) Delete(ctx context.Context, sessionID string) (bool, error) {
	return r.store.Delete(ctx, sessionID)
}

// DeleteAllForUser removes every session owned by userID and returns how many
// were removed.
func (r *Registry) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := r.sessionIDsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		ok, err := r.store.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if idx, ok := r.store.(UserIndex); ok && len(ids) > 0 {
		if err := idx.Unindex(ctx, userID, ids...); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// ListForUser returns the live sessions owned by userID, most recently active
// first.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	var out []*Session

	if idx, ok := r.store.(UserIndex); ok {
		ids, err := idx.SessionIDsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		var stale []string
		for _, id := range ids {
			sess, found, err := r.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if !found || sess.UserID != userID {
				stale = append(stale, id)
				continue
			}
			out = append(out, sess)
		}
		if len(stale) > 0 {
			if err := idx.Unindex(ctx, userID, stale...); err != nil {
				return nil, err
			}
		}
	} else {
		err := r.store.Range(ctx, func(s *Session) bool {
			if s.UserID == userID {
				out = append(out, s)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// SweepExpired deletes sessions idle for longer than idle and returns how
// many were removed. Candidates are collected from a snapshot first; each
// is deleted only if it is still idle when the store removes it, so a
// session touched in between survives.
func (r *Registry) SweepExpired(ctx context.Context, idle time.Duration) (int, error) {
	now := r.now()
	var expired []string
	err := r.store.Range(ctx, func(s *Session) bool {
		if s.IdleExpired(now, idle) {
			expired = append(expired, s.SessionID)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range expired {
		ok, err := r.store.DeleteIf(ctx, id, func(s *Session) bool {
			return s.IdleExpired(r.now(), idle)
		})
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (r *Registry) sessionIDsForUser(ctx context.Context, userID string) ([]string, error) {
	if idx, ok := r.store.(UserIndex); ok {
		return idx.SessionIDsForUser(ctx, userID)
	}
	var ids []string
	err := r.store.Range(ctx, func(s *Session) bool {
		if s.UserID == userID {
			ids = append(ids, s.SessionID)
		}
		return true
	})
	return ids, err
}
