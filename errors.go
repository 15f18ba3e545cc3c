package vhauth

import (
	"errors"
	"fmt"

	"github.com/virtualhospital/vhauth/internal/rate"
	"github.com/virtualhospital/vhauth/session"
)

var (
	// ErrTokenInvalid is returned for every access-token verification
	// failure. The specific cause is wrapped alongside it.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrSessionNotFound means the session a token names does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionUserMismatch means a token names a session owned by another user.
	ErrSessionUserMismatch = errors.New("session user mismatch")
	// ErrTokenVersionStale means the token predates the session's latest refresh.
	ErrTokenVersionStale = errors.New("token version superseded")
	// ErrRefreshInvalid is returned for every refresh failure except device
	// mismatch.
	ErrRefreshInvalid = errors.New("invalid or expired refresh token")
	// ErrDeviceMismatch means the request and session fingerprints are both
	// present and differ.
	ErrDeviceMismatch = errors.New("device fingerprint mismatch")
	// ErrInvalidIdentity is returned by Issue when no user id is supplied.
	ErrInvalidIdentity = errors.New("identity requires a user id")
	// ErrSessionCreationFailed wraps failures to create or sign a new session.
	ErrSessionCreationFailed = errors.New("session creation failed")

	// ErrRateLimited is returned when an action exceeds its window policy.
	ErrRateLimited = errors.New("too many attempts")
	// ErrUnknownAction is returned when no rate policy exists for an action.
	ErrUnknownAction = rate.ErrUnknownAction

	// ErrCSRFMissing means a state-changing request carried no CSRF token.
	ErrCSRFMissing = errors.New("csrf token required")
	// ErrCSRFSessionRequired means a CSRF token was requested without a
	// session id to bind it to.
	ErrCSRFSessionRequired = errors.New("csrf session id required")
	// ErrCSRFInvalid means the CSRF token is unknown, expired or bound to
	// another session.
	ErrCSRFInvalid = errors.New("invalid csrf token")

	// ErrSuspiciousRequest means request input matched a known attack signature.
	ErrSuspiciousRequest = errors.New("suspicious request")
	// ErrValidationFailed means request fields failed declared rules.
	ErrValidationFailed = errors.New("validation failed")

	// ErrStoreUnavailable wraps failures of a backing store.
	ErrStoreUnavailable = session.ErrStoreUnavailable
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ConfigurationError reports an invalid or unsafe setting. Processes must
// refuse to start when Build returns one.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("vhauth: invalid configuration %s: %s", e.Field, e.Reason)
}

func configError(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// storeError tags err as a store failure unless it already is one.
func storeError(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
