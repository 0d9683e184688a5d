// Package otel provides OpenTelemetry metric exporter bindings for
// gatekit counters.
//
// [NewOTelExporter] registers an Int64ObservableCounter per gatekit
// metric. A single callback reads [gatekit.Engine.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
