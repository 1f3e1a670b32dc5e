package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/revend-core/internal/detection"
)

// WriteDetection records one detection outcome for a machine.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Material goes in as a tag so fleet dashboards can slice by it cheaply.
//
// Example:
//
//	client.WriteDetection("machine-7", result)
func (c *Client) WriteDetection(machineID string, res detection.Result) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"detections",
		map[string]string{
			"machine_id": machineID,
			"material":   res.Material.String(),
		},
		map[string]interface{}{
			"confidence": res.Confidence,
			"points":     res.Points,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMachineStatus records a machine liveness transition, mirrored
// from the MQTT status topics so uptime can be charted.
//
// Parameters:
//   - machineID: Machine identifier
//   - online: Whether the machine is reachable
func (c *Client) WriteMachineStatus(machineID string, online bool) {
	if !c.IsConnected() {
		return
	}

	up := 0
	if online {
		up = 1
	}

	point := write.NewPoint(
		"machine_status",
		map[string]string{
			"machine_id": machineID,
		},
		map[string]interface{}{
			"online": up,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "backend-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
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
