// Package prometheus renders authkit engine metrics in the Prometheus text
// exposition format.
//
// Counter names are prefixed authkit_ and end in _total; the single
// histogram is authkit_login_latency_seconds. Nothing is registered
// globally: callers mount [Exporter.Handler] where they want it.
package prometheus
