package influxdb

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

// testConfig returns a configuration for a local development InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         os.Getenv("INFLUXDB_TOKEN"),
		Org:           "luckperms",
		Bucket:        "luckperms",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip skips the test if InfluxDB is not running.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fields(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

// =============================================================================
// Unit Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name         string
		batch, flush int
		wantBatch    int
		wantFlush    int
	}{
		{"configured", 500, 5, 500, 5},
		{"zero", 0, 0, defaultBatchSize, defaultFlushInterval},
		{"negative", -5, -1, defaultBatchSize, defaultFlushInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.BatchSize, cfg.FlushInterval = tt.batch, tt.flush
			batch, flush := batchSettings(cfg)
			if batch != tt.wantBatch || flush != tt.wantFlush {
				t.Errorf("batchSettings() = %d, %d, want %d, %d", batch, flush, tt.wantBatch, tt.wantFlush)
			}
		})
	}
}

func TestRequestPoint(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	p := requestPoint("GET", "/user/{id}", 404, 1500*time.Microsecond, at)

	if p.Name() != MeasurementRequests || !p.Time().Equal(at) {
		t.Errorf("point = %s at %v", p.Name(), p.Time())
	}
	wantTags := map[string]string{"method": "GET", "route": "/user/{id}", "status": "404"}
	got := tags(p)
	for k, v := range wantTags {
		if got[k] != v {
			t.Errorf("tag %s = %q, want %q", k, got[k], v)
		}
	}
	if d := fields(p)["duration_ms"]; d != 1.5 {
		t.Errorf("duration_ms = %v, want 1.5", d)
	}
}

func TestEventPoint(t *testing.T) {
	p := eventPoint("post-sync", 3, time.Now())
	if p.Name() != MeasurementEvents || tags(p)["kind"] != "post-sync" {
		t.Errorf("point = %s %v", p.Name(), tags(p))
	}
	if c := fields(p)["clients"]; c != int64(3) {
		t.Errorf("clients = %v (%T), want 3", c, c)
	}
}

func TestWritesWhenDisconnected(t *testing.T) {
	// A client that never connected drops points instead of touching the write API.
	c := &Client{}
	c.WriteRequest("GET", "/health", 200, time.Millisecond)
	c.WriteEvent("pre-sync", 1)
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Server Tests
// =============================================================================

func TestWriteRequest(t *testing.T) {
	client := connectOrSkip(t)

	var (
		writeErr error
		mu       sync.Mutex
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteRequest("GET", "/user/{id}", 200, 3*time.Millisecond)
	client.WriteEvent("pre-sync", 2)
	client.Flush()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("write error = %v", writeErr)
	}
}

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() succeeded with a cancelled context")
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)
	client.WriteRequest("GET", "/", 302, time.Millisecond)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
