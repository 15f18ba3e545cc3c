// Package session owns the registry of live authentication sessions.
//
// A [Session] is the root of trust for every token the engine issues: a token
// is only honoured while the session it names exists and belongs to the same
// user. The package exposes a [Store] interface with two implementations:
//
//   - [MemoryStore]: a process-local map. State is lost on restart and is not
//     shared between processes.
//   - [RedisStore]: Redis-backed storage with a compact binary encoding and a
//     per-user index set. Updates use WATCH so concurrent refreshes of the
//     same session serialize correctly across processes.
//
// [Registry] layers the session lifecycle on top of a Store: creation with a
// fresh 256-bit identifier, activity tracking, version bumps, logout and the
// idle sweep.
//
// # What this package must NOT do
//
//   - Import vhauth, jwt, or middleware (no upward imports).
//   - Interpret tokens or derive signing secrets.
//   - Raise errors for absent sessions on read paths; absence is a normal
//     result.
package session
