// Package influxdb provides InfluxDB connectivity for Revend.
//
// It wraps the official influxdb-client-go v2 library with Revend-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Detection outcomes per machine (material mix, confidence, points)
//   - Machine utilisation and fleet analytics
//
// The SQLite ledger remains the source of truth for transactions and
// balances; InfluxDB holds the analytical view and is entirely optional.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "revend",
//	    Bucket: "detections",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteDetection("machine-7", result)
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
// This reduces network overhead for busy sites.
package influxdb
