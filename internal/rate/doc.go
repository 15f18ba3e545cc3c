// Package rate implements fixed-window attempt counters keyed by
// (action, ip, identifier).
//
// # Window semantics
//
// The first hit after a window has lapsed starts a new window with count 1;
// later hits increment it. A key is blocked once its count exceeds the
// policy's MaxAttempts and stays blocked until the window resets. Windows are
// fixed, not sliding: up to 2×MaxAttempts can land across a window boundary.
//
// # Backends
//
//   - MemoryBackend: process-local map, swept explicitly.
//   - RedisBackend: INCR + PEXPIRE on first hit in one Lua call, so
//     concurrent processes share one counter. Redis expiry replaces the sweep.
//
// Keys have the form "<action>:<ip>:<identifier>" (prefixed in Redis).
//
// # What this package must NOT do
//
//   - Read HTTP requests; callers extract ip and identifier.
//   - Be imported outside the vhauth module.
package rate
