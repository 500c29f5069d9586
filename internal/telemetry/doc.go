// Package telemetry wraps OpenTelemetry SDK initialization, giving the
// migrator a centralized TracerProvider and MeterProvider configuration.
// When telemetry is disabled, noop implementations are used and nothing
// connects to an external collector.
package telemetry
