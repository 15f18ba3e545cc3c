package flows

import (
	"context"

	"github.com/virtualhospital/vhauth/internal"
	"github.com/virtualhospital/vhauth/jwt"
	"github.com/virtualhospital/vhauth/session"
)

// VerifyFailureKind classifies verify failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureMalformed
	VerifyFailureStore
	VerifyFailureSessionNotFound
	VerifyFailureUserMismatch
	VerifyFailureSignature
	VerifyFailureStaleVersion
	VerifyFailureDeviceMismatch
)

// VerifyResult returns either verified claims and the session they reference
// or a classified failure.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Session *session.Session
}

// VerifyDeps captures access-token verification dependencies.
type VerifyDeps struct {
	Sessions       SessionRegistry
	Tokens         TokenManager
	EnforceVersion bool
	EnforceDevice  bool
}

// RunVerify checks an access token against the session it names. The token
// is only decoded, not trusted, until the session lookup succeeds; the
// signature is then checked with the secret derived for that session.
func RunVerify(ctx context.Context, tokenStr, deviceFingerprint string, deps VerifyDeps) VerifyResult {
	peeked, err := deps.Tokens.PeekAccess(tokenStr)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureMalformed, Err: err}
	}

	sess, ok, err := deps.Sessions.Get(ctx, peeked.SessionID)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureStore, Err: err}
	}
	if !ok {
		return VerifyResult{Failure: VerifyFailureSessionNotFound}
	}
	if sess.UserID != peeked.UserID {
		return VerifyResult{Failure: VerifyFailureUserMismatch, Session: sess}
	}

	claims, err := deps.Tokens.ParseAccess(tokenStr, sess.UserID, sess.SessionID)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureSignature, Err: err, Session: sess}
	}
	if deps.EnforceVersion && claims.TokenVersion != sess.TokenVersion {
		return VerifyResult{Failure: VerifyFailureStaleVersion, Claims: claims, Session: sess}
	}
	if deps.EnforceDevice && internal.FingerprintsConflict(sess.DeviceFingerprint, deviceFingerprint) {
		return VerifyResult{Failure: VerifyFailureDeviceMismatch, Claims: claims, Session: sess}
	}

	if err := deps.Sessions.Touch(ctx, sess.SessionID); err != nil {
		return VerifyResult{Failure: VerifyFailureStore, Err: err, Claims: claims, Session: sess}
	}
	return VerifyResult{Claims: claims, Session: sess}
}
