package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled")

	// ErrConnectionFailed wraps the startup ping failure.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by health checks on a closed client.
	ErrNotConnected = errors.New("influxdb: not connected")
)
