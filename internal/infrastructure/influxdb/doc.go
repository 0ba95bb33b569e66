// Package influxdb provides the optional InfluxDB telemetry sink of the
// gateway.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing and health monitoring.
//
// # Measurements
//
//   - http_requests: one point per request, tagged method, route and status,
//     field duration_ms
//   - engine_events: one point per engine event seen by the event bridge,
//     tagged kind, field clients
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRequest("GET", "/user/{id}", 200, 12*time.Millisecond)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
