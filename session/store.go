package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store] implementations when the requested
// session does not exist. Higher layers translate it into an absent result.
var ErrNotFound = errors.New("session not found")

// ErrStoreUnavailable wraps backend failures (network, decoding) so callers
// can tell an unreachable store apart from a missing session.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store is the storage contract behind [Registry].
//
// Implementations must be safe for concurrent use. Get and Range hand out
// copies; mutating a returned *Session never changes stored state. Update is
// the only read-modify-write primitive and must apply fn atomically with
// respect to other Update calls on the same id.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Put(ctx context.Context, sess *Session) error
	Update(ctx context.Context, sessionID string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, sessionID string) (bool, error)

	// DeleteIf removes the session only if pred holds for its current
	// value, evaluated atomically with the delete. An absent session
	// reports false and no error.
	DeleteIf(ctx context.Context, sessionID string, pred func(*Session) bool) (bool, error)

	// Range calls fn for every stored session until fn returns false. It
	// iterates a snapshot, so fn may call back into the store.
	Range(ctx context.Context, fn func(*Session) bool) error
}

// UserIndex is implemented by stores that keep a secondary index from user id
// to session ids. When the store does not implement it, per-user operations
// fall back to a full scan.
type UserIndex interface {
	SessionIDsForUser(ctx context.Context, userID string) ([]string, error)
	Unindex(ctx context.Context, userID string, sessionIDs ...string) error
}
