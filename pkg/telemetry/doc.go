// Package telemetry reports what a wash cycle did.
//
// A Telemetry value bundles a zerolog Logger, an OpenTelemetry Tracer,
// Prometheus Metrics and an EventPublisher built from one Config. The
// orchestrator takes it through washer.WithTelemetry:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(ctx)
//	dw := washer.New(pump, engine, filter, door, washer.WithTelemetry(tel))
//
// Device drivers find the cycle logger with FromContext; it already carries
// cycle_id and device fields.
//
// Spans: one "cycle.start" root per cycle and a "<device>.<operation>" child
// per device call, e.g. "door.lock" or "pump.drain".
//
// Metrics, all prefixed with the configured namespace:
//
//	cycles_started_total{program}
//	cycles_completed_total{program,status}
//	program_minutes_total{program}
//	active_cycles
//	device_calls_total{device,operation}
//	device_errors_total{device,operation}
//	device_call_duration_seconds{device,operation}
//
// Event types are cycle.started, cycle.completed, cycle.failed,
// step.completed and step.failed.
package telemetry
