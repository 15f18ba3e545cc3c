// Package internal contains helpers that are private to vhauth: secure random
// identifiers and device fingerprinting.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: viper-based loading of process settings
//   - csrf: anti-forgery token issuance and validation
//   - flows: pure-function orchestrators for every Engine token operation
//   - rate: fixed-window rate limiting with memory and Redis backends
//
// # What this package must NOT do
//
//   - Export types that appear in the public vhauth API.
//   - Be imported by any package outside the vhauth module.
package internal
