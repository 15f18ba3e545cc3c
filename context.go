package vhauth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/virtualhospital/vhauth/internal"
)

// SecurityContext describes the client behind one request. It is attached by
// the HTTP pipeline, read by the Engine for fingerprints and audit records,
// and never persisted.
type SecurityContext struct {
	IP                string
	UserAgent         string
	RequestID         string
	DeviceFingerprint string
	Timestamp         time.Time
}

// NewSecurityContext builds a SecurityContext with a fresh request id and
// the fingerprint of (userAgent, ip).
func NewSecurityContext(ip, userAgent string, now time.Time) SecurityContext {
	return SecurityContext{
		IP:                ip,
		UserAgent:         userAgent,
		RequestID:         uuid.NewString(),
		DeviceFingerprint: DeviceFingerprint(userAgent, ip),
		Timestamp:         now,
	}
}

// DeviceFingerprint hashes a user agent and IP into the opaque value stored
// on sessions. Empty inputs hash as "unknown".
func DeviceFingerprint(userAgent, ip string) string {
	return internal.DeviceFingerprint(userAgent, ip)
}

type securityContextKey struct{}
type authContextKey struct{}

// WithSecurityContext attaches sc to ctx.
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityContextFrom returns the SecurityContext attached to ctx.
func SecurityContextFrom(ctx context.Context) (SecurityContext, bool) {
	if ctx == nil {
		return SecurityContext{}, false
	}
	sc, ok := ctx.Value(securityContextKey{}).(SecurityContext)
	return sc, ok
}

// WithAuth attaches a verified identity to ctx. The auth guard middleware
// calls it after a successful Verify.
func WithAuth(ctx context.Context, res *AuthResult) context.Context {
	return context.WithValue(ctx, authContextKey{}, res)
}

// AuthFrom returns the verified identity attached to ctx, or nil.
func AuthFrom(ctx context.Context) *AuthResult {
	if ctx == nil {
		return nil
	}
	res, _ := ctx.Value(authContextKey{}).(*AuthResult)
	return res
}

func fingerprintFromContext(ctx context.Context) string {
	sc, _ := SecurityContextFrom(ctx)
	return sc.DeviceFingerprint
}
