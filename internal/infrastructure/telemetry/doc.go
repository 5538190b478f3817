// Package telemetry records fleet metrics to InfluxDB: client connection
// state transitions, fan-out outcomes, and reconciliation passes.
//
// Telemetry is optional. When disabled in config, Connect returns
// ErrDisabled and callers run without a telemetry client. Writes are
// batched and non-blocking; a dropped point never stalls the fleet.
package telemetry
