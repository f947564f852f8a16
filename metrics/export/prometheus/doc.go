// Package prometheus exposes authcore engine metrics as a client_golang
// collector.
//
// Counter names are authcore_*_total; the single histogram is
// authcore_validate_latency_seconds. [PrometheusExporter.Handler] serves a
// private registry; use [PrometheusExporter.Register] to add the collector to
// an existing one.
package prometheus
