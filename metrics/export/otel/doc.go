// Package otel publishes authkit engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// for the login latency histogram, one Int64ObservableGauge per cumulative
// bucket plus count and sum gauges. A single callback reads the engine
// snapshot on each collection.
//
// The caller owns the MeterProvider; the exporter only registers
// instruments on the Meter it is given and never touches engine state.
package otel
