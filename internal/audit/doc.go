// Package audit relays security-relevant events to pluggable sinks without
// blocking request handling.
//
// # Components
//
//   - [Sink]: the consumer interface. Channel, JSON-lines, zerolog, fan-out
//     and no-op implementations are provided.
//   - [Dispatcher]: a buffered asynchronous relay that either drops or blocks
//     when full.
//   - [Event]: a flat record of what happened, to whom, and from where.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. Deciding which events to emit is
// the Engine's and the HTTP middleware's job.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import vhauth or any sibling internal package.
package audit
