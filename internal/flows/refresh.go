package flows

import (
	"context"
	"errors"

	"github.com/virtualhospital/vhauth/internal"
	"github.com/virtualhospital/vhauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureStore
	RefreshFailureSessionNotFound
	RefreshFailureUserMismatch
	RefreshFailureDeviceMismatch
	RefreshFailureSignature
	RefreshFailureStaleVersion
	RefreshFailureSign
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure         RefreshFailureKind
	Err             error
	SessionID       string
	UserID          string
	Session         *session.Session
	PreviousVersion int64
	AccessToken     string
	RefreshToken    string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Sessions       SessionRegistry
	Tokens         TokenManager
	EnforceVersion bool
}

var (
	errRotateUserMismatch = errors.New("session owner changed")
	errRotateStale        = errors.New("refresh token version is stale")
	errRotateDevice       = errors.New("device fingerprint conflict")
)

// RunRefresh consumes a refresh token and issues a new pair for the same
// session with an advanced token version.
//
// The signature is verified before the device check, so only a genuine token
// can report a fingerprint conflict. The version and device conditions are checked again inside the atomic rotation so two concurrent
// refreshes with the same token cannot both succeed when versions are
// enforced.
func RunRefresh(ctx context.Context, refreshToken, deviceFingerprint string, deps RefreshDeps) RefreshResult {
	peeked, err := deps.Tokens.PeekRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}
	res := RefreshResult{SessionID: peeked.SessionID, UserID: peeked.UserID}

	sess, ok, err := deps.Sessions.Get(ctx, peeked.SessionID)
	if err != nil {
		res.Failure, res.Err = RefreshFailureStore, err
		return res
	}
	if !ok {
		res.Failure = RefreshFailureSessionNotFound
		return res
	}
	res.Session = sess
	res.PreviousVersion = sess.TokenVersion
	if sess.UserID != peeked.UserID {
		res.Failure = RefreshFailureUserMismatch
		return res
	}

	claims, err := deps.Tokens.ParseRefresh(refreshToken, sess.UserID, sess.SessionID)
	if err != nil {
		res.Failure, res.Err = RefreshFailureSignature, err
		return res
	}
	if internal.FingerprintsConflict(sess.DeviceFingerprint, deviceFingerprint) {
		res.Failure = RefreshFailureDeviceMismatch
		return res
	}

	rotated, ok, err := deps.Sessions.Rotate(ctx, sess.SessionID, func(cur *session.Session) error {
		if cur.UserID != claims.UserID {
			return errRotateUserMismatch
		}
		if deps.EnforceVersion && claims.TokenVersion != cur.TokenVersion {
			return errRotateStale
		}
		if internal.FingerprintsConflict(cur.DeviceFingerprint, deviceFingerprint) {
			return errRotateDevice
		}
		return nil
	})
	switch {
	case errors.Is(err, errRotateUserMismatch):
		res.Failure = RefreshFailureUserMismatch
		return res
	case errors.Is(err, errRotateStale):
		res.Failure = RefreshFailureStaleVersion
		return res
	case errors.Is(err, errRotateDevice):
		res.Failure = RefreshFailureDeviceMismatch
		return res
	case err != nil:
		res.Failure, res.Err = RefreshFailureStore, err
		return res
	case !ok:
		res.Failure = RefreshFailureSessionNotFound
		return res
	}
	res.Session = rotated

	access, err := deps.Tokens.CreateAccess(accessClaimsFor(rotated), 0)
	if err != nil {
		res.Failure, res.Err = RefreshFailureSign, err
		return res
	}
	next, err := deps.Tokens.CreateRefresh(rotated.UserID, rotated.SessionID, rotated.TokenVersion)
	if err != nil {
		res.Failure, res.Err = RefreshFailureSign, err
		return res
	}

	res.AccessToken = access
	res.RefreshToken = next
	return res
}
