// Package sinks implements activity consumers: structured logging, Prometheus
// counters, and the chapter view counter. Each satisfies activity.Sink.
package sinks
