// Package telemetry configures OpenTelemetry tracing for a run.
//
// Tracing is off unless OTEL_EXPORTER_OTLP_ENDPOINT (or the traces-specific
// variant) is set, in which case spans are exported over OTLP/HTTP. The
// exporter reads the standard OTEL_* variables itself.
package telemetry
