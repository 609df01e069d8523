// Package prometheus provides a Prometheus collector for authgate metrics.
//
// [NewPrometheusExporter] accepts an [authgate.Engine] and exposes an [http.Handler]
// that renders all authgate counters and histograms through the Prometheus client
// library. Counter names are prefixed authgate_*_total; the single histogram is
// authgate_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry — callers mount the Handler
//     or register the collector themselves.
//   - Mutate engine state.
package prometheus
