package mqtt

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Host:        "127.0.0.1",
		Port:        1883,
		ClientID:    "luckperms-rest-test",
		QoS:         1,
		TopicPrefix: "luckperms-test",
	}
}

// connectOrSkip connects to a local broker, skipping the test when none runs.
func connectOrSkip(t *testing.T, cfg config.MQTTConfig) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", strings.TrimPrefix(brokerURL(cfg), "tcp://"), time.Second)
	if err != nil {
		t.Skipf("no MQTT broker at %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	conn.Close()

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Unit Tests (no broker)
// =============================================================================

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.TLS = true
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:1883" {
		t.Errorf("brokerURL(TLS) = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "gateway"
	cfg.Password = "secret"
	cfg.TLS = true

	opts := buildClientOptions(cfg)
	if opts.ClientID != cfg.ClientID {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, cfg.ClientID)
	}
	if opts.Username != "gateway" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "lp"}, "gw-1")

	if !opts.WillEnabled || opts.WillTopic != "lp/status/gw-1" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), `"reason":"unexpected_disconnect"`) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"update", Topics{Prefix: "luckperms"}.Update(), "luckperms/update"},
		{"default prefix", Topics{}.Update(), "luckperms/update"},
		{"status", Topics{Prefix: "net"}.Status("gw-1"), "net/status/gw-1"},
		{"all statuses", Topics{}.AllStatuses(), "luckperms/status/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestValidatePublish(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		qos     byte
		want    error
	}{
		{"valid", []byte("x"), 1, nil},
		{"nil payload", nil, 0, nil},
		{"qos 3", []byte("x"), 3, ErrInvalidQoS},
		{"too large", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePublish(tt.payload, tt.qos)
			if !errors.Is(err, tt.want) {
				t.Errorf("validatePublish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnconnectedClient(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
	if err := c.Publish(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe(func([]byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe(nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil) error = %v, want ErrSubscribeFailed", err)
	}
	if c.Subscribed() {
		t.Error("Subscribed() = true after failed Subscribe")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	var (
		mu       sync.Mutex
		received []byte
	)
	done := make(chan struct{})
	err := client.Subscribe(func(payload []byte) error {
		mu.Lock()
		received = payload
		mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.Subscribed() {
		t.Error("Subscribed() = false after Subscribe")
	}

	if err := client.Publish(context.Background(), []byte(`{"type":"update"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received within 5s")
	}
	mu.Lock()
	defer mu.Unlock()
	if string(received) != `{"type":"update"}` {
		t.Errorf("received = %s", received)
	}
}

func TestHealthCheckConnected(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}
