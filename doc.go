// Package vhauth is the session-scoped authentication core of Virtual
// Hospital: per-session derived JWT secrets, short-lived access tokens with
// rotating refresh tokens, a session registry with device-fingerprint
// binding, fixed-window rate limiting and session-bound CSRF tokens.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// vhauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (TokenPair, SessionInfo, MetricsSnapshot, ...). Flow
// orchestration, rate windows, CSRF storage and audit dispatch live under
// internal/. The HTTP pipeline that feeds the Engine lives in middleware/.
//
// # What this package must NOT do
//
//   - Verify passwords or OAuth assertions. Callers establish identity and
//     hand it to [Engine.Issue].
//   - Expose Redis clients or store internals in its public API.
//   - Import any sub-package that re-imports vhauth.
//
// # Scaling boundary
//
// Without [Builder.WithRedis] every table lives in process memory and a
// restart silently invalidates all sessions. Multi-process deployments must
// configure Redis so window counters and session rotation are atomic.
package vhauth
