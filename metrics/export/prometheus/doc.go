// Package prometheus bridges gatekit counters into a Prometheus
// registry.
//
// [NewCollector] accepts a [gatekit.Engine] and implements
// prometheus.Collector over its metrics snapshot; [Handler] wraps the
// collector in a private registry behind an http.Handler. Counter
// names are prefixed gatekit_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in the global default registry. Callers either
//     mount Handler or register the Collector themselves.
//   - Mutate engine state.
package prometheus
