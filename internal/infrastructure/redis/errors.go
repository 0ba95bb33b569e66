package redis

import "errors"

var (
	// ErrConnectionFailed is returned when the server cannot be reached before the retry budget runs out.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("redis: publish failed")

	// ErrSubscribeFailed is returned when the subscription cannot be confirmed.
	ErrSubscribeFailed = errors.New("redis: subscribe failed")
)
