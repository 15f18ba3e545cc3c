package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/virtualhospital/vhauth/internal"
	"github.com/virtualhospital/vhauth/jwt"
	"github.com/virtualhospital/vhauth/session"
)

type fixture struct {
	now      time.Time
	registry *session.Registry
	tokens   *jwt.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.registry = session.NewRegistry(nil, session.WithClock(clock))
	m, err := jwt.NewManager(jwt.Config{
		BaseSecret: []byte("flows-test-base-secret-0123456789abcdef"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clock,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	f.tokens = m
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Issue:   IssueDeps{Sessions: f.registry, Tokens: f.tokens},
		Verify:  VerifyDeps{Sessions: f.registry, Tokens: f.tokens, EnforceVersion: true},
		Refresh: RefreshDeps{Sessions: f.registry, Tokens: f.tokens, EnforceVersion: true},
		Logout:  LogoutDeps{Sessions: f.registry},
	}
}

func (f *fixture) issue(t *testing.T, userID, fingerprint string) IssueResult {
	t.Helper()
	res := RunIssue(context.Background(), IssueRequest{
		Identity:          session.Identity{UserID: userID, Email: userID + "@example.com", Username: userID, Provider: "local"},
		DeviceFingerprint: fingerprint,
	}, f.deps().Issue)
	if res.Failure != IssueFailureNone {
		t.Fatalf("issue failed: kind=%d err=%v", res.Failure, res.Err)
	}
	return res
}

func TestIssueThenVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "u1", "")

	f.now = f.now.Add(time.Minute)
	res := RunVerify(ctx, issued.AccessToken, "", f.deps().Verify)
	if res.Failure != VerifyFailureNone {
		t.Fatalf("verify failed: kind=%d err=%v", res.Failure, res.Err)
	}
	if res.Claims.UserID != "u1" || res.Claims.Email != "u1@example.com" || res.Claims.SessionID != issued.Session.SessionID {
		t.Fatalf("unexpected claims %+v", res.Claims)
	}

	sess, _, _ := f.registry.Get(ctx, issued.Session.SessionID)
	if !sess.LastActivity.Equal(f.now) {
		t.Fatalf("expected verify to touch the session, lastActivity=%v", sess.LastActivity)
	}
}

func TestVerifyFailsAfterLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "u1", "")

	removed, err := RunLogout(ctx, issued.Session.SessionID, f.deps().Logout)
	if err != nil || !removed {
		t.Fatalf("logout: removed=%v err=%v", removed, err)
	}
	res := RunVerify(ctx, issued.AccessToken, "", f.deps().Verify)
	if res.Failure != VerifyFailureSessionNotFound {
		t.Fatalf("expected session-not-found, got %d", res.Failure)
	}

	removed, err = RunLogout(ctx, issued.Session.SessionID, f.deps().Logout)
	if err != nil || removed {
		t.Fatalf("second logout should be a no-op: removed=%v err=%v", removed, err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	f := newFixture(t)
	res := RunVerify(context.Background(), "not-a-token", "", f.deps().Verify)
	if res.Failure != VerifyFailureMalformed {
		t.Fatalf("expected malformed, got %d", res.Failure)
	}
}

func TestSessionSecretsAreIsolated(t *testing.T) {
	f := newFixture(t)
	a := f.issue(t, "u1", "")
	b := f.issue(t, "u1", "")

	// A token naming session B but signed with session A's derived key.
	claims := jwt.AccessClaims{
		UserID:       "u1",
		SessionID:    b.Session.SessionID,
		TokenVersion: b.Session.TokenVersion,
		Type:         jwt.TypeAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    jwt.DefaultIssuer,
			Subject:   "u1",
			Audience:  gjwt.ClaimStrings{"u1"},
			IssuedAt:  gjwt.NewNumericDate(f.now),
			ExpiresAt: gjwt.NewNumericDate(f.now.Add(time.Minute)),
		},
	}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).
		SignedString(f.tokens.DeriveSecret("u1", a.Session.SessionID))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	res := RunVerify(context.Background(), forged, "", f.deps().Verify)
	if res.Failure != VerifyFailureSignature {
		t.Fatalf("expected signature failure, got %d", res.Failure)
	}
}

func TestVerifyRejectsUserMismatch(t *testing.T) {
	f := newFixture(t)
	victim := f.issue(t, "u1", "")

	claims := jwt.AccessClaims{UserID: "u2", SessionID: victim.Session.SessionID, TokenVersion: victim.Session.TokenVersion}
	tok, err := f.tokens.CreateAccess(claims, 0)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	res := RunVerify(context.Background(), tok, "", f.deps().Verify)
	if res.Failure != VerifyFailureUserMismatch {
		t.Fatalf("expected user mismatch, got %d", res.Failure)
	}
}

func TestVerifyDeviceBinding(t *testing.T) {
	f := newFixture(t)
	fp := internal.DeviceFingerprint("agent/1", "10.0.0.1")
	issued := f.issue(t, "u1", fp)

	deps := f.deps().Verify
	other := internal.DeviceFingerprint("agent/2", "10.0.0.2")
	if res := RunVerify(context.Background(), issued.AccessToken, other, deps); res.Failure != VerifyFailureNone {
		t.Fatalf("binding is advisory by default, got %d", res.Failure)
	}

	deps.EnforceDevice = true
	if res := RunVerify(context.Background(), issued.AccessToken, other, deps); res.Failure != VerifyFailureDeviceMismatch {
		t.Fatalf("expected device mismatch, got %d", res.Failure)
	}
	if res := RunVerify(context.Background(), issued.AccessToken, "", deps); res.Failure != VerifyFailureNone {
		t.Fatalf("absent request fingerprint must not conflict, got %d", res.Failure)
	}
}

func TestRefreshRotatesVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "u1", "")
	before := issued.Session.TokenVersion

	res := RunRefresh(ctx, issued.RefreshToken, "", f.deps().Refresh)
	if res.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: kind=%d err=%v", res.Failure, res.Err)
	}
	if res.Session.TokenVersion == before || res.PreviousVersion != before {
		t.Fatalf("expected version to advance from %d, got %d", before, res.Session.TokenVersion)
	}

	verified := RunVerify(ctx, res.AccessToken, "", f.deps().Verify)
	if verified.Failure != VerifyFailureNone {
		t.Fatalf("verify new access: kind=%d err=%v", verified.Failure, verified.Err)
	}
	if verified.Claims.TokenVersion != res.Session.TokenVersion {
		t.Fatalf("new access token carries version %d, want %d", verified.Claims.TokenVersion, res.Session.TokenVersion)
	}
	if verified.Claims.Email != "u1@example.com" || verified.Claims.Provider != "local" {
		t.Fatalf("refreshed token lost identity claims: %+v", verified.Claims)
	}

	stale := RunVerify(ctx, issued.AccessToken, "", f.deps().Verify)
	if stale.Failure != VerifyFailureStaleVersion {
		t.Fatalf("expected stale access token to fail, got %d", stale.Failure)
	}
}

func TestRefreshWithStaleRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "u1", "")

	first := RunRefresh(ctx, issued.RefreshToken, "", f.deps().Refresh)
	if first.Failure != RefreshFailureNone {
		t.Fatalf("first refresh failed: %d", first.Failure)
	}

	again := RunRefresh(ctx, issued.RefreshToken, "", f.deps().Refresh)
	if again.Failure != RefreshFailureStaleVersion {
		t.Fatalf("expected stale refresh token rejection, got %d", again.Failure)
	}
	sess, _, _ := f.registry.Get(ctx, issued.Session.SessionID)
	if sess.TokenVersion != first.Session.TokenVersion {
		t.Fatalf("rejected refresh must not move the version: %d != %d", sess.TokenVersion, first.Session.TokenVersion)
	}

	lenient := f.deps().Refresh
	lenient.EnforceVersion = false
	if res := RunRefresh(ctx, issued.RefreshToken, "", lenient); res.Failure != RefreshFailureNone {
		t.Fatalf("without version enforcement the old token should rotate, got %d", res.Failure)
	}
}

func TestRefreshDeviceMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fp := internal.DeviceFingerprint("agent/1", "10.0.0.1")
	issued := f.issue(t, "u1", fp)

	res := RunRefresh(ctx, issued.RefreshToken, internal.DeviceFingerprint("agent/1", "10.9.9.9"), f.deps().Refresh)
	if res.Failure != RefreshFailureDeviceMismatch {
		t.Fatalf("expected device mismatch, got %d", res.Failure)
	}
	if res := RunRefresh(ctx, issued.RefreshToken, fp, f.deps().Refresh); res.Failure != RefreshFailureNone {
		t.Fatalf("matching fingerprint should refresh, got %d", res.Failure)
	}
}

func TestRefreshForgedTokenFailsSignatureBeforeDeviceCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "u1", internal.DeviceFingerprint("agent/1", "10.0.0.1"))

	forger, err := jwt.NewManager(jwt.Config{
		BaseSecret: []byte("attacker-guess-secret-0123456789abcdef"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	forged, err := forger.CreateRefresh("u1", issued.Session.SessionID, issued.Session.TokenVersion)
	if err != nil {
		t.Fatalf("forge: %v", err)
	}

	res := RunRefresh(ctx, forged, internal.DeviceFingerprint("agent/2", "10.9.9.9"), f.deps().Refresh)
	if res.Failure != RefreshFailureSignature {
		t.Fatalf("expected signature failure for forged token, got %d", res.Failure)
	}
}

func TestRefreshRejectsAccessTokenAndMissingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "u1", "")

	if res := RunRefresh(ctx, issued.AccessToken, "", f.deps().Refresh); res.Failure != RefreshFailureMalformed {
		t.Fatalf("access token used as refresh: got %d", res.Failure)
	}

	if _, err := RunLogout(ctx, issued.Session.SessionID, f.deps().Logout); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if res := RunRefresh(ctx, issued.RefreshToken, "", f.deps().Refresh); res.Failure != RefreshFailureSessionNotFound {
		t.Fatalf("expected session-not-found, got %d", res.Failure)
	}
}

func TestRefreshExpired(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "u1", "")
	f.now = f.now.Add(8 * 24 * time.Hour)

	res := RunRefresh(context.Background(), issued.RefreshToken, "", f.deps().Refresh)
	if res.Failure != RefreshFailureSignature {
		t.Fatalf("expected expired refresh to fail verification, got %d", res.Failure)
	}
	if !errors.Is(res.Err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", res.Err)
	}
}

func TestLogoutAllAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issue(t, "u1", "")
	f.now = f.now.Add(time.Second)
	newest := f.issue(t, "u1", "")
	other := f.issue(t, "u2", "")

	list, err := RunListSessions(ctx, "u1", f.deps().Logout)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != newest.Session.SessionID {
		t.Fatalf("unexpected listing %+v", list)
	}

	n, err := RunLogoutAll(ctx, "u1", f.deps().Logout)
	if err != nil || n != 2 {
		t.Fatalf("logout all: n=%d err=%v", n, err)
	}
	if res := RunVerify(ctx, other.AccessToken, "", f.deps().Verify); res.Failure != VerifyFailureNone {
		t.Fatalf("other user's session must survive, got %d", res.Failure)
	}
}

type failingRefreshSigner struct {
	*jwt.Manager
}

func (failingRefreshSigner) CreateRefresh(string, string, int64) (string, error) {
	return "", errors.New("signer offline")
}

func TestIssueRemovesSessionWhenSigningFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deps := IssueDeps{Sessions: f.registry, Tokens: failingRefreshSigner{f.tokens}}

	res := RunIssue(ctx, IssueRequest{Identity: session.Identity{UserID: "u1"}}, deps)
	if res.Failure != IssueFailureSign {
		t.Fatalf("expected sign failure, got %d", res.Failure)
	}
	if _, ok, _ := f.registry.Get(ctx, res.Session.SessionID); ok {
		t.Fatal("session should be removed after signing failure")
	}

	if res := RunIssue(ctx, IssueRequest{}, deps); res.Failure != IssueFailureInvalidIdentity {
		t.Fatalf("expected invalid identity, got %d", res.Failure)
	}
}
