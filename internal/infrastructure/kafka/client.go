package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

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

// MessageHandler receives the value of every record on the topic.
// Returned errors are logged.
type MessageHandler func(payload []byte) error

// Client produces to and consumes from one topic.
//
// Every instance reads the whole topic without a consumer group, starting
// at the end, so each message reaches every running gateway.
type Client struct {
	client *kgo.Client
	topic  string

	mu     sync.Mutex
	logger Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// Connect creates the client and pings the seed brokers, retrying with
// exponential backoff.
func Connect(ctx context.Context, cfg config.KafkaConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: brokers and topic are required", ErrInvalidConfig)
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	ping := func() error { return cl.Ping(ctx) }
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(connectInitialInterval),
		backoff.WithMaxInterval(connectMaxInterval),
		backoff.WithMaxElapsedTime(connectMaxElapsed),
	)
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		cl.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return &Client{client: cl, topic: cfg.Topic}, nil
}

// Topic returns the topic name.
func (c *Client) Topic() string {
	return c.topic
}

// SetLogger sets the logger used for fetch and handler errors.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// Publish produces one record and waits for the brokers to acknowledge it.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	rec := &kgo.Record{Topic: c.topic, Value: payload}
	if err := c.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe starts the poll loop that hands every record to handler.
// It returns immediately; the loop stops on Close.
func (c *Client) Subscribe(handler MessageHandler) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("kafka: already subscribed to %s", c.topic)
	}
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.poll(ctx, handler, done)
	return nil
}

func (c *Client) poll(ctx context.Context, handler MessageHandler, done chan struct{}) {
	defer close(done)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("kafka fetch error", "topic", topic, "partition", partition, "error", err)
			}
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			if err := handler(rec.Value); err != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Warn("kafka handler returned error", "topic", rec.Topic, "offset", rec.Offset, "error", err)
				}
			}
		})
	}
}

// HealthCheck pings the brokers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check: %w", err)
	}
	return nil
}

// Close stops the poll loop and closes the client.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.client.Close()
	return nil
}
