package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives every payload published on the update topic.
// Returned errors are logged.
type MessageHandler func(payload []byte) error

// Client is an MQTT connection bound to the update topic of one network.
// It announces the instance on a retained status topic and restores its
// subscription after paho reconnects.
type Client struct {
	client   pahomqtt.Client
	clientID string
	qos      byte
	topics   Topics

	connected atomic.Bool

	mu      sync.RWMutex
	handler MessageHandler
	logger  Logger
}

// Connect dials the broker and waits for the first CONNACK.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		clientID: cfg.ClientID,
		qos:      byte(cfg.QoS), // #nosec G115 -- validated to 0..2
		topics:   Topics{Prefix: cfg.TopicPrefix},
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(cfg, err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no CONNACK within %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	// onConnect runs on a paho goroutine and may still be pending.
	c.connected.Store(true)
	return c, nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetLogger sets the logger for connection loss and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) onConnect() {
	c.connected.Store(true)

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		c.client.Subscribe(c.topics.Update(), c.qos, c.dispatch(handler))
	}
	c.client.Publish(c.topics.Status(c.clientID), c.qos, true, statusPayload(c.clientID, "online", ""))
}

func (c *Client) onConnectionLost(cfg config.MQTTConfig, err error) {
	c.connected.Store(false)
	if logger := c.log(); logger != nil {
		logger.Warn("mqtt connection lost", "broker", brokerURL(cfg), "error", err)
	}
}

// IsConnected reports whether the broker link is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// HealthCheck fails when ctx is done or the link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close marks the instance offline and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(c.topics.Status(c.clientID), c.qos, true,
			statusPayload(c.clientID, "offline", "graceful_shutdown")).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// dispatch adapts handler to paho and recovers its panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.log(); logger != nil {
					logger.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()
		if err := handler(msg.Payload()); err != nil {
			if logger := c.log(); logger != nil {
				logger.Warn("mqtt handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
