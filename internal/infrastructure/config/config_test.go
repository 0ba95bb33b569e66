package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Auth.Enabled {
		t.Error("Auth.Enabled = true, want false")
	}
	if !cfg.Cache.Users || !cfg.Cache.Groups || !cfg.Cache.Tracks {
		t.Errorf("Cache = %+v, want all enabled", cfg.Cache)
	}
	if cfg.HeartbeatInterval().Seconds() != 10 {
		t.Errorf("HeartbeatInterval() = %v, want 10s", cfg.HeartbeatInterval())
	}
	if cfg.Messaging.Backend != BackendNone {
		t.Errorf("Messaging.Backend = %q, want none", cfg.Messaging.Backend)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
port: 9090
auth:
  enabled: true
  keys: ["abc", "def"]
cache:
  users: false
messaging:
  backend: redis
  redis:
    url: "redis://cache:6379/1"
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.Keys) != 2 {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Cache.Users || !cfg.Cache.Groups {
		t.Errorf("Cache = %+v, want users off, groups on", cfg.Cache)
	}
	if cfg.Messaging.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("Messaging.Redis.URL = %q", cfg.Messaging.Redis.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml", nil); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path, nil); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_PropertyBeatsEnvBeatsFile(t *testing.T) {
	path := writeConfig(t, "port: 7000\n")
	t.Setenv("LUCKPERMS_REST_PORT", "7001")
	t.Setenv("LUCKPERMS_REST_AUTH_KEYS", "env-key")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7001 {
		t.Errorf("Port = %d, want env value 7001", cfg.Port)
	}

	cfg, err = Load(path, map[string]string{
		"luckperms.rest.port": "7002",
		"auth.keys":           "abc, xyz ,",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7002 {
		t.Errorf("Port = %d, want property value 7002", cfg.Port)
	}
	if got := strings.Join(cfg.Auth.Keys, ","); got != "abc,xyz" {
		t.Errorf("Auth.Keys = %q, want abc,xyz", got)
	}
}

func TestLoad_MalformedOverrides(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		want  string
	}{
		{"bad bool", map[string]string{"auth": "yes"}, "not a boolean"},
		{"bad int", map[string]string{"port": "eighty"}, "not an integer"},
		{"unknown key", map[string]string{"luckperms.rest.nope": "1"}, "unknown property"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", tt.props)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"port range", func(c *Config) { c.Port = 70000 }, "port must be between"},
		{"await", func(c *Config) { c.Timeouts.Await = 0 }, "timeouts.await"},
		{"backend", func(c *Config) { c.Messaging.Backend = "carrier-pigeon" }, "messaging.backend"},
		{"kafka brokers", func(c *Config) {
			c.Messaging.Backend = BackendKafka
			c.Messaging.Kafka.Brokers = nil
		}, "messaging.kafka.brokers"},
		{"mqtt qos", func(c *Config) {
			c.Messaging.Backend = BackendMQTT
			c.Messaging.MQTT.QoS = 3
		}, "messaging.mqtt.qos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := defaultConfig()
	c.Port = 0
	c.Database.Path = ""
	err := c.Validate()
	if err == nil || strings.Count(err.Error(), ";") != 1 {
		t.Errorf("Validate() error = %v, want two problems", err)
	}
}

func TestWarnings(t *testing.T) {
	c := defaultConfig()
	if len(c.Warnings()) != 0 {
		t.Errorf("Warnings() = %v, want none", c.Warnings())
	}
	c.Auth.Enabled = true
	if len(c.Warnings()) != 1 {
		t.Errorf("Warnings() = %v, want empty key warning", c.Warnings())
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("cache.users"); got != "LUCKPERMS_REST_CACHE_USERS" {
		t.Errorf("EnvName() = %q", got)
	}
	if got := NormalizeKey(" LuckPerms.Rest.Auth.Keys "); got != "auth.keys" {
		t.Errorf("NormalizeKey() = %q", got)
	}
}
