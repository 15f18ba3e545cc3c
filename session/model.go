package session

import "time"

// Session is one authenticated login of a user on one device.
//
// Email, Username and Provider are carried so that a refreshed access token
// can be reissued with the same identity claims without consulting the user
// directory.
type Session struct {
	SessionID string
	UserID    string

	Email    string
	Username string
	Provider string

	// TokenVersion is bumped on every issuance and refresh. Tokens carrying
	// an older version are stale.
	TokenVersion int64

	// DeviceFingerprint is a hex digest of the client user agent and IP at
	// creation time. Empty when the caller supplied none.
	DeviceFingerprint string

	CreatedAt    time.Time
	LastActivity time.Time
}

// Clone returns a copy that shares no state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// IdleExpired reports whether the session has been idle for longer than idle
// at instant now. A session whose idle deadline equals now is still live.
func (s *Session) IdleExpired(now time.Time, idle time.Duration) bool {
	return now.After(s.LastActivity.Add(idle))
}

// NextVersion returns the token version that follows prev at instant now.
// Versions are wall-clock milliseconds but never go backwards or repeat, even
// when two bumps land in the same millisecond.
func NextVersion(now time.Time, prev int64) int64 {
	v := now.UnixMilli()
	if v <= prev {
		v = prev + 1
	}
	return v
}
