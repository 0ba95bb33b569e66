package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client is the gateway's request and event telemetry sink. Points are
// batched by the library and written in the background; a closed client
// drops them.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	open     atomic.Bool

	hookMu  sync.RWMutex
	onError func(error)
}

// Connect pings the server once and returns a client with a non-blocking
// write API bound to cfg.Org and cfg.Bucket. It returns ErrDisabled when the
// sink is switched off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushSeconds := batchSettings(cfg)
	// #nosec G115 -- batchSettings returns positive values
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flushSeconds) * 1000)
	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, raw); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{client: raw, writeAPI: raw.WriteAPI(cfg.Org, cfg.Bucket)}
	c.open.Store(true)
	go c.forwardErrors()
	return c, nil
}

func ping(ctx context.Context, raw influxdb2.Client) error {
	ok, err := raw.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server reports unhealthy")
	}
	return nil
}

// batchSettings falls back to 100 points and 10 seconds for unset values.
func batchSettings(cfg config.InfluxDBConfig) (batchSize, flushSeconds int) {
	batchSize, flushSeconds = cfg.BatchSize, cfg.FlushInterval
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushSeconds <= 0 {
		flushSeconds = defaultFlushInterval
	}
	return batchSize, flushSeconds
}

// forwardErrors drains the async error channel until the client closes it.
func (c *Client) forwardErrors() {
	for err := range c.writeAPI.Errors() {
		c.hookMu.RLock()
		hook := c.onError
		c.hookMu.RUnlock()
		if hook != nil {
			hook(err)
		}
	}
}

// SetOnError installs the callback for failed background writes.
func (c *Client) SetOnError(hook func(error)) {
	c.hookMu.Lock()
	c.onError = hook
	c.hookMu.Unlock()
}

// IsConnected reports whether the client still accepts points.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// Flush writes buffered points now. It is a no-op once closed.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// HealthCheck pings the server. It satisfies the gateway's health probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the connection.
func (c *Client) Close() error {
	if c.client == nil || !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
