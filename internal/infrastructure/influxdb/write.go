package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRequests = "http_requests"
	MeasurementEvents   = "engine_events"
)

// WriteRequest records one finished HTTP request.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - method: HTTP method
//   - route: chi route pattern (e.g. "/user/{id}"), never the raw path
//   - status: response status code
//   - duration: time from receipt to the last byte written
func (c *Client) WriteRequest(method, route string, status int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(requestPoint(method, route, status, duration, time.Now()))
}

func requestPoint(method, route string, status int, duration time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRequests,
		map[string]string{
			"method": method,
			"route":  route,
			"status": strconv.Itoa(status),
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Microseconds()) / 1000,
		},
		at,
	)
}

// WriteEvent records one engine event and how many stream clients it reached.
func (c *Client) WriteEvent(kind string, clients int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(kind, clients, time.Now()))
}

func eventPoint(kind string, clients int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementEvents,
		map[string]string{"kind": kind},
		map[string]interface{}{"clients": clients},
		at,
	)
}
