// Package prometheus renders engine metrics in Prometheus text format.
//
// [NewPrometheusExporter] accepts an engine and exposes an [net/http.Handler]
// that renders all counters and histograms in text exposition format.
// Counter names are prefixed authcore_*_total; the single histogram is
// authcore_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
