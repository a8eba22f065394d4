// Package instrumentation provides OpenTelemetry metrics and tracing for the
// wind-oauth library.
//
// The package is built around a single Instrumentation value created with New.
// When disabled, no-op providers are installed so the hot path carries zero
// observability overhead. Callers pull named meters and tracers per layer
// ("http", "server", "storage", "security") and record through the
// pre-registered instruments on Metrics.
//
// Sensitive credential values (tokens, codes, secrets) are never recorded as
// span attributes or metric labels; only metadata such as client IDs, grant
// types, and durations.
package instrumentation
