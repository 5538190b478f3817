package telemetry

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordConnectionState writes a client connection state transition.
//
// Tags identify the client; the numeric state value allows dashboards to
// graph transitions over time, and the connected field gives a simple 0/1
// availability series.
func (c *Client) RecordConnectionState(moduleID string, instanceID uint32, clientID int, state string, connected bool) {
	if !c.IsConnected() {
		return
	}

	connectedVal := 0
	if connected {
		connectedVal = 1
	}

	point := write.NewPoint(
		"client_connection",
		map[string]string{
			"module_id":   moduleID,
			"instance_id": strconv.FormatUint(uint64(instanceID), 10),
			"client_id":   strconv.Itoa(clientID),
		},
		map[string]interface{}{
			"state":     state,
			"connected": connectedVal,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordFanout writes the outcome of one fan-out operation across the fleet.
func (c *Client) RecordFanout(operation string, targeted, failed int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fanout",
		map[string]string{
			"operation": operation,
		},
		map[string]interface{}{
			"targeted":    targeted,
			"failed":      failed,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordReconciliation writes the outcome of one registry reconciliation pass.
func (c *Client) RecordReconciliation(created, recreated, destroyed int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"reconciliation",
		map[string]string{},
		map[string]interface{}{
			"created":     created,
			"recreated":   recreated,
			"destroyed":   destroyed,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
