package redis

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

func testConfig() config.RedisConfig {
	return config.RedisConfig{
		URL:     "redis://127.0.0.1:6379/0",
		Channel: "luckperms-test:update",
	}
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:6379", time.Second)
	if err != nil {
		t.Skipf("no Redis server at 127.0.0.1:6379: %v", err)
	}
	conn.Close()

	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnectInvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{URL: "http://nope"})
	if err == nil {
		t.Fatal("Connect() accepted a non-redis URL")
	}
}

func TestConnectCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, config.RedisConfig{URL: "redis://127.0.0.1:1/0", Channel: "c"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t)

	var (
		mu  sync.Mutex
		got []byte
	)
	done := make(chan struct{})
	err := client.Subscribe(context.Background(), func(payload []byte) error {
		mu.Lock()
		got = payload
		mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
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
	if string(got) != `{"type":"update"}` {
		t.Errorf("received %s", got)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
