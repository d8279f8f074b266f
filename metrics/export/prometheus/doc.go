// Package prometheus provides Prometheus collectors for tokengate metrics.
//
// [NewPrometheusExporter] accepts an [tokengate.Engine] and exposes an [http.Handler]
// that renders all tokengate counters and histograms in Prometheus text exposition format.
// Counter names are prefixed tokengate_*_total; the single histogram is
// tokengate_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
