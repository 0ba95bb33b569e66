package kafka

import "errors"

var (
	// ErrConnectionFailed is returned when no seed broker answers before the retry budget runs out.
	ErrConnectionFailed = errors.New("kafka: connection failed")

	// ErrPublishFailed is returned when a record cannot be produced.
	ErrPublishFailed = errors.New("kafka: publish failed")

	// ErrInvalidConfig is returned for a configuration without brokers or topic.
	ErrInvalidConfig = errors.New("kafka: invalid configuration")
)
