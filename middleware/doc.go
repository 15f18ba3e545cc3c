// Package middleware is the request security pipeline: net/http middleware
// that attaches a SecurityContext, rejects suspicious input, sanitizes what
// remains, enforces rate limits, validates fields, checks CSRF tokens and
// guards routes with access tokens.
//
// A typical chain is
//
//	SecurityContext → Inspect → RateLimit → Validate → CSRF → handler
//
// with [Guard] in front of handlers that need an authenticated user. Every
// stage short-circuits with a JSON envelope {success:false, message, ...}
// and the response always carries X-Request-ID.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token, rate and
// CSRF decisions are made by the Engine; pattern matching and field rules
// come from package security.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Echo matched attack patterns or internal causes back to the client.
package middleware
