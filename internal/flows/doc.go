// Package flows contains the orchestration behind every token operation of the
// Engine.
//
// Each flow function (RunIssue, RunVerify, RunRefresh, RunLogout, ...) accepts
// a typed dependency struct and returns a result carrying either the success
// payload or a classified failure. The root package maps failure kinds onto
// its exported sentinel errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flows coordinate the session registry and the token manager. They do not
// own either; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import vhauth (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through dependency interfaces.
package flows
