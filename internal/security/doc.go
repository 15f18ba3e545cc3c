// Package security condenses an engine configuration into the posture report
// served by the check-config command and logged at startup.
//
// # What this package must NOT do
//
//   - Read secrets. The input carries flags and durations only.
package security
