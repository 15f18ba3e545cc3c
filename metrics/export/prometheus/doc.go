// Package prometheus renders vhauth metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads [vhauth.Engine.MetricsSnapshot] on every
// scrape. Counters are named vhauth_*_total; the one histogram is
// vhauth_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
