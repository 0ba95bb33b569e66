package mqtt

import "errors"

var (
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: QoS must be 0, 1 or 2")
)
