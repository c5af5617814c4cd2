// Package otel provides an OpenTelemetry observer plugin for the
// taskscope library. It emits span events (fork, cancel, join, failure)
// with low overhead.
package otel
