// Package otel publishes vhauth counters and the verify latency histogram as
// OpenTelemetry observable instruments.
//
// Counters map one to one. Each latency histogram becomes a cumulative
// "_bucket" counter carrying an "le" attribute per upper bound, plus a
// "_count" counter. One callback reads [vhauth.Engine.MetricsSnapshot] per
// collection.
//
// The caller owns the MeterProvider and its export pipeline; the exporter
// only registers instruments on the Meter it is given.
package otel
