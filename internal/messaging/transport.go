package messaging

import (
	"context"
	"fmt"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
	"github.com/LuckPerms/rest-api/internal/infrastructure/kafka"
	"github.com/LuckPerms/rest-api/internal/infrastructure/mqtt"
	"github.com/LuckPerms/rest-api/internal/infrastructure/redis"
)

// Transport carries encoded messages between gateway instances. A message
// published by an instance may be delivered back to it.
type Transport interface {
	// Name identifies the backend in logs, metrics and health details.
	Name() string
	Publish(ctx context.Context, payload []byte) error
	// Subscribe starts delivering inbound payloads to handler.
	Subscribe(handler func(payload []byte) error) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Dial connects the transport selected by cfg.Backend. It returns nil and no
// error for the "none" backend.
func Dial(ctx context.Context, cfg config.MessagingConfig, logger Logger) (Transport, error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, nil
	case config.BackendMQTT:
		c, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		c.SetLogger(logger)
		return &mqttTransport{client: c}, nil
	case config.BackendRedis:
		c, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		c.SetLogger(logger)
		return &redisTransport{client: c}, nil
	case config.BackendKafka:
		c, err := kafka.Connect(ctx, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		c.SetLogger(logger)
		return &kafkaTransport{client: c}, nil
	default:
		return nil, fmt.Errorf("messaging: unknown backend %q", cfg.Backend)
	}
}

// mqttTransport adapts the MQTT client to Transport. Messages use the
// update topic with the configured QoS and are never retained.
type mqttTransport struct {
	client *mqtt.Client
}

func (t *mqttTransport) Name() string { return config.BackendMQTT }

func (t *mqttTransport) Publish(ctx context.Context, payload []byte) error {
	return t.client.Publish(ctx, payload)
}

func (t *mqttTransport) Subscribe(handler func([]byte) error) error {
	return t.client.Subscribe(handler)
}

func (t *mqttTransport) HealthCheck(ctx context.Context) error { return t.client.HealthCheck(ctx) }
func (t *mqttTransport) Close() error                          { return t.client.Close() }

type redisTransport struct {
	client *redis.Client
}

func (t *redisTransport) Name() string { return config.BackendRedis }

func (t *redisTransport) Publish(ctx context.Context, payload []byte) error {
	return t.client.Publish(ctx, payload)
}

func (t *redisTransport) Subscribe(handler func([]byte) error) error {
	return t.client.Subscribe(context.Background(), handler)
}

func (t *redisTransport) HealthCheck(ctx context.Context) error { return t.client.HealthCheck(ctx) }
func (t *redisTransport) Close() error                          { return t.client.Close() }

type kafkaTransport struct {
	client *kafka.Client
}

func (t *kafkaTransport) Name() string { return config.BackendKafka }

func (t *kafkaTransport) Publish(ctx context.Context, payload []byte) error {
	return t.client.Publish(ctx, payload)
}

func (t *kafkaTransport) Subscribe(handler func([]byte) error) error {
	return t.client.Subscribe(handler)
}

func (t *kafkaTransport) HealthCheck(ctx context.Context) error { return t.client.HealthCheck(ctx) }
func (t *kafkaTransport) Close() error                          { return t.client.Close() }
