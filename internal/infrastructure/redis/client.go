package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

// Connection constants.
const (
	connectInitialInterval = 200 * time.Millisecond
	connectMaxInterval     = 5 * time.Second
	connectMaxElapsed      = 30 * time.Second
)

// Logger interface for optional logging support.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives the payload of every message on the channel.
// Returned errors are logged.
type MessageHandler func(payload []byte) error

// Client wraps the go-redis client bound to one pub/sub channel.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	*goredis.Client
	channel string

	mu     sync.Mutex
	pubsub *goredis.PubSub
	logger Logger
}

// Connect parses cfg.URL and pings the server, retrying with exponential
// backoff until it answers, ctx ends or the retry budget is spent.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := goredis.NewClient(opts)

	ping := func() error { return client.Ping(ctx).Err() }
	if err := backoff.Retry(ping, backoff.WithContext(connectBackOff(), ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return &Client{Client: client, channel: cfg.Channel}, nil
}

func connectBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(connectInitialInterval),
		backoff.WithMaxInterval(connectMaxInterval),
		backoff.WithMaxElapsedTime(connectMaxElapsed),
	)
}

// Channel returns the pub/sub channel name.
func (c *Client) Channel() string {
	return c.channel
}

// SetLogger sets the logger used for handler errors.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Publish sends payload to the channel.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	if err := c.Client.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe confirms a subscription to the channel and then delivers every
// message to handler on a background goroutine until Close.
func (c *Client) Subscribe(ctx context.Context, handler MessageHandler) error {
	ps := c.Client.Subscribe(ctx, c.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.mu.Lock()
	c.pubsub = ps
	c.mu.Unlock()

	go c.deliver(ps.Channel(), handler)
	return nil
}

func (c *Client) deliver(messages <-chan *goredis.Message, handler MessageHandler) {
	for msg := range messages {
		if err := handler([]byte(msg.Payload)); err != nil {
			c.mu.Lock()
			logger := c.logger
			c.mu.Unlock()
			if logger != nil {
				logger.Warn("redis handler returned error", "channel", msg.Channel, "error", err)
			}
		}
	}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

// Close ends the subscription and closes the connection pool.
func (c *Client) Close() error {
	c.mu.Lock()
	ps := c.pubsub
	c.pubsub = nil
	c.mu.Unlock()

	if ps != nil {
		ps.Close()
	}
	return c.Client.Close()
}
