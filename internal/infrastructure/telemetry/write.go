package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStateMetric records a numeric device state field change.
//
// The write is non-blocking; data is batched and sent asynchronously.
// serviceID may be empty for device-level fields.
//
// Example:
//
//	client.WriteStateMetric("dev-1", "svc-light", "brightness", 0.75)
func (c *Client) WriteStateMetric(deviceID, serviceID, field string, value float64) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id": deviceID,
		"field":     field,
	}
	if serviceID != "" {
		tags["service_id"] = serviceID
	}

	point := write.NewPoint(
		"device_state",
		tags,
		map[string]interface{}{"value": value},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectivity records a device connect/disconnect transition, stored
// as 1/0 so dashboards can plot uptime.
func (c *Client) WriteConnectivity(deviceID string, connected bool) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if connected {
		value = 1
	}

	point := write.NewPoint(
		"device_connectivity",
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"connected": value},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// Flush forces all pending writes to be sent immediately.
func (c *Client) Flush() {
	if c == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
