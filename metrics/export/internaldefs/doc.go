// Package internaldefs holds the metric names, help text and bucket helpers
// shared by the Prometheus and OpenTelemetry exporters.
package internaldefs
