// Package influxdb records scan and control telemetry for upcast.
//
// It wraps the official influxdb-client-go v2 library with patterns for
// connection management, point writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Discovery run summaries (device counts, durations, scan modes)
//   - Control command outcomes per device and protocol
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "upcast",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteScanSummary(summary)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead when scans report many devices.
package influxdb
