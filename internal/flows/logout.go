package flows

import (
	"context"

	"github.com/virtualhospital/vhauth/session"
)

// LogoutDeps captures logout and session listing dependencies.
type LogoutDeps struct {
	Sessions SessionRegistry
}

// RunLogout removes one session. Removing an absent session reports false.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	return deps.Sessions.Delete(ctx, sessionID)
}

// RunLogoutAll removes every session of userID and reports how many existed.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	if userID == "" {
		return 0, nil
	}
	return deps.Sessions.DeleteAllForUser(ctx, userID)
}

// RunListSessions returns the live sessions of userID, most recently active
// first.
func RunListSessions(ctx context.Context, userID string, deps LogoutDeps) ([]*session.Session, error) {
	if userID == "" {
		return nil, nil
	}
	return deps.Sessions.ListForUser(ctx, userID)
}
