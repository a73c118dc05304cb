package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dabrowsk/upcast/internal/discovery"
)

// WriteScanSummary records a completed discovery run.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Measurement: "discovery_scan"
// Tags: mode (ssdp|scan), network (for scan mode)
// Fields: devices, duration_ms
func (c *Client) WriteScanSummary(s discovery.Summary) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"mode": s.Mode,
	}
	if s.Network != "" {
		tags["network"] = s.Network
	}

	point := write.NewPoint(
		"discovery_scan",
		tags,
		map[string]interface{}{
			"devices":     s.Devices,
			"duration_ms": s.Duration.Milliseconds(),
			"scan_id":     s.ScanID,
		},
		s.Started.Add(s.Duration),
	)

	c.writeAPI.WritePoint(point)
}

// WriteControlResult records the outcome of a media control command.
//
// Parameters:
//   - ip: Target device IP
//   - action: Command name (e.g., "play", "set_volume")
//   - protocol: Protocol used (e.g., "upnp", "ecp")
//   - status: Outcome ("success", "error", "not_supported", "not_implemented")
//   - duration: Time the command took including network round trips
func (c *Client) WriteControlResult(ip, action, protocol, status string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"control_result",
		map[string]string{
			"ip":       ip,
			"action":   action,
			"protocol": protocol,
			"status":   status,
		},
		map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
