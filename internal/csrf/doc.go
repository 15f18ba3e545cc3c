// Package csrf issues and validates anti-forgery tokens bound to a session.
//
// Tokens are 256-bit random hex strings that live for a fixed TTL. They are
// multi-use by default: any number of state-changing requests from the same
// session may present the same token until it expires. Guard.Validate evicts
// expired tokens it encounters; the rest are removed by Sweep, which the HTTP
// layer triggers on a small random fraction of requests.
package csrf
