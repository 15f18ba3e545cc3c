package flows

import (
	"context"
	"time"

	"github.com/virtualhospital/vhauth/jwt"
	"github.com/virtualhospital/vhauth/session"
)

// SessionRegistry is the subset of [session.Registry] the flows depend on.
type SessionRegistry interface {
	Create(ctx context.Context, id session.Identity, deviceFingerprint string) (*session.Session, error)
	Get(ctx context.Context, sessionID string) (*session.Session, bool, error)
	Touch(ctx context.Context, sessionID string) error
	Rotate(ctx context.Context, sessionID string, check func(*session.Session) error) (*session.Session, bool, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]*session.Session, error)
}

// TokenManager is the subset of [jwt.Manager] the flows depend on.
type TokenManager interface {
	CreateAccess(claims jwt.AccessClaims, ttl time.Duration) (string, error)
	CreateRefresh(userID, sessionID string, tokenVersion int64) (string, error)
	PeekAccess(tokenStr string) (*jwt.AccessClaims, error)
	PeekRefresh(tokenStr string) (*jwt.RefreshClaims, error)
	ParseAccess(tokenStr, userID, sessionID string) (*jwt.AccessClaims, error)
	ParseRefresh(tokenStr, userID, sessionID string) (*jwt.RefreshClaims, error)
}

// Deps groups flow dependency sets. The Engine builds this once and delegates
// each request method to the matching flow.
type Deps struct {
	Issue   IssueDeps
	Verify  VerifyDeps
	Refresh RefreshDeps
	Logout  LogoutDeps
}

// accessClaimsFor rebuilds access claims from the session record, which is
// the only trusted copy of the identity fields.
func accessClaimsFor(sess *session.Session) jwt.AccessClaims {
	return jwt.AccessClaims{
		UserID:       sess.UserID,
		Email:        sess.Email,
		Username:     sess.Username,
		Provider:     sess.Provider,
		SessionID:    sess.SessionID,
		TokenVersion: sess.TokenVersion,
	}
}
