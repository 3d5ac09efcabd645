// Package observe provides the logging, tracing and metrics used around
// storage operations.
//
// It is a pure instrumentation library: it never performs storage I/O.
// The router wraps every backend attempt with Instrument, and the health
// monitor records probe latency through Metrics.
package observe
