// Package security holds the request-content defences applied by the vhauth
// HTTP pipeline:
//
//   - Detect: reject input that matches known SQL injection, XSS or command
//     injection signatures. Detection runs on the raw input, before any
//     sanitization.
//   - Sanitize: strip the same families of fragments from every string leaf
//     of a decoded JSON body or query.
//   - Validate: declarative per-field rules (required, type, length,
//     pattern) with optional HTML escaping, plus the register, login and
//     social-login presets.
//
// The functions are pure and safe for concurrent use. The matched pattern
// name is reported so callers can log it; it must never be echoed to clients.
package security
