package flows

import (
	"context"
	"time"

	"github.com/virtualhospital/vhauth/session"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidIdentity
	IssueFailureSession
	IssueFailureSign
)

// IssueRequest carries an identity that the caller has already verified.
type IssueRequest struct {
	Identity          session.Identity
	DeviceFingerprint string
	// AccessTTL overrides the default access lifetime when positive.
	AccessTTL time.Duration
}

// IssueResult carries either the new session and token pair or failure
// metadata.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	Session      *session.Session
	AccessToken  string
	RefreshToken string
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Sessions SessionRegistry
	Tokens   TokenManager
	Warn     func(string, ...any)
}

// RunIssue creates a session and signs an access and refresh token bound to
// it. A session whose tokens cannot be signed is removed again.
func RunIssue(ctx context.Context, req IssueRequest, deps IssueDeps) IssueResult {
	if req.Identity.UserID == "" {
		return IssueResult{Failure: IssueFailureInvalidIdentity}
	}

	sess, err := deps.Sessions.Create(ctx, req.Identity, req.DeviceFingerprint)
	if err != nil {
		return IssueResult{Failure: IssueFailureSession, Err: err}
	}

	access, err := deps.Tokens.CreateAccess(accessClaimsFor(sess), req.AccessTTL)
	if err != nil {
		discard(ctx, deps, sess.SessionID)
		return IssueResult{Failure: IssueFailureSign, Err: err, Session: sess}
	}
	refresh, err := deps.Tokens.CreateRefresh(sess.UserID, sess.SessionID, sess.TokenVersion)
	if err != nil {
		discard(ctx, deps, sess.SessionID)
		return IssueResult{Failure: IssueFailureSign, Err: err, Session: sess}
	}

	return IssueResult{
		Session:      sess,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

func discard(ctx context.Context, deps IssueDeps, sessionID string) {
	if _, err := deps.Sessions.Delete(ctx, sessionID); err != nil && deps.Warn != nil {
		deps.Warn("vhauth: failed to remove session after signing error", "error", err)
	}
}
