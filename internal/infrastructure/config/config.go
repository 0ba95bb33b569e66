package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "LUCKPERMS_REST_"

// PropertyPrefix is the optional prefix of command-line properties.
const PropertyPrefix = "luckperms.rest."

// Config is the root configuration of the gateway.
type Config struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Database  DatabaseConfig  `yaml:"database"`
	Messaging MessagingConfig `yaml:"messaging"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AuthConfig controls the bearer-key gate. The property "auth" maps to
// Enabled and "auth.keys" to Keys.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
}

// CacheConfig toggles the entity cache per holder kind.
type CacheConfig struct {
	Users  bool `yaml:"users"`
	Groups bool `yaml:"groups"`
	Tracks bool `yaml:"tracks"`
}

// TimeoutConfig holds HTTP timeouts in seconds.
type TimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
	// Await bounds how long a handler waits for the engine.
	Await int `yaml:"await"`
}

// HeartbeatConfig controls SSE keep-alive pings.
type HeartbeatConfig struct {
	Interval int `yaml:"interval"`
}

// DatabaseConfig contains SQLite settings for the reference engine.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Messaging backends.
const (
	BackendNone  = "none"
	BackendMQTT  = "mqtt"
	BackendRedis = "redis"
	BackendKafka = "kafka"
)

// MessagingConfig selects and configures the cross-instance transport.
type MessagingConfig struct {
	Backend string      `yaml:"backend"`
	MQTT    MQTTConfig  `yaml:"mqtt"`
	Redis   RedisConfig `yaml:"redis"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         int    `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// RedisConfig contains Redis pub/sub settings.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// KafkaConfig contains Kafka settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values
//  2. YAML file values, when path is not empty
//  3. Environment variables (LUCKPERMS_REST_AUTH_KEYS for auth.keys)
//  4. Properties, usually from -D on the command line (highest precedence)
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for none
//   - props: Dotted keys, with or without the luckperms.rest. prefix
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, an override is malformed, or validation fails
func Load(path string, props map[string]string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyOverrides(cfg, os.LookupEnv, props); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Host: "0.0.0.0",
		Port: 8080,
		Cache: CacheConfig{
			Users:  true,
			Groups: true,
			Tracks: true,
		},
		Timeouts: TimeoutConfig{
			Read:  30,
			Write: 0, // SSE streams stay open
			Idle:  60,
			Await: 30,
		},
		Heartbeat: HeartbeatConfig{Interval: 10},
		Database: DatabaseConfig{
			Path:        "./data/luckperms.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Messaging: MessagingConfig{
			Backend: BackendNone,
			MQTT: MQTTConfig{
				Host:        "localhost",
				Port:        1883,
				ClientID:    "luckperms-rest",
				QoS:         1,
				TopicPrefix: "luckperms",
			},
			Redis: RedisConfig{
				URL:     "redis://localhost:6379/0",
				Channel: "luckperms:update",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "luckperms-update",
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "luckperms",
			Bucket:        "luckperms",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// setter applies one string-valued override.
type setter func(c *Config, v string) error

func stringSetter(field func(c *Config) *string) setter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intSetter(field func(c *Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(c *Config) *bool) setter {
	return func(c *Config, v string) error {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			*field(c) = true
		case "false":
			*field(c) = false
		default:
			return fmt.Errorf("not a boolean: %q", v)
		}
		return nil
	}
}

func listSetter(field func(c *Config) *[]string) setter {
	return func(c *Config, v string) error {
		*field(c) = SplitList(v)
		return nil
	}
}

// settings maps every dotted key to its field.
var settings = map[string]setter{
	"host":               stringSetter(func(c *Config) *string { return &c.Host }),
	"port":               intSetter(func(c *Config) *int { return &c.Port }),
	"auth":               boolSetter(func(c *Config) *bool { return &c.Auth.Enabled }),
	"auth.keys":          listSetter(func(c *Config) *[]string { return &c.Auth.Keys }),
	"cache.users":        boolSetter(func(c *Config) *bool { return &c.Cache.Users }),
	"cache.groups":       boolSetter(func(c *Config) *bool { return &c.Cache.Groups }),
	"cache.tracks":       boolSetter(func(c *Config) *bool { return &c.Cache.Tracks }),
	"timeouts.read":      intSetter(func(c *Config) *int { return &c.Timeouts.Read }),
	"timeouts.write":     intSetter(func(c *Config) *int { return &c.Timeouts.Write }),
	"timeouts.idle":      intSetter(func(c *Config) *int { return &c.Timeouts.Idle }),
	"timeouts.await":     intSetter(func(c *Config) *int { return &c.Timeouts.Await }),
	"heartbeat.interval": intSetter(func(c *Config) *int { return &c.Heartbeat.Interval }),

	"database.path":         stringSetter(func(c *Config) *string { return &c.Database.Path }),
	"database.wal_mode":     boolSetter(func(c *Config) *bool { return &c.Database.WALMode }),
	"database.busy_timeout": intSetter(func(c *Config) *int { return &c.Database.BusyTimeout }),

	"messaging.backend":           stringSetter(func(c *Config) *string { return &c.Messaging.Backend }),
	"messaging.mqtt.host":         stringSetter(func(c *Config) *string { return &c.Messaging.MQTT.Host }),
	"messaging.mqtt.port":         intSetter(func(c *Config) *int { return &c.Messaging.MQTT.Port }),
	"messaging.mqtt.tls":          boolSetter(func(c *Config) *bool { return &c.Messaging.MQTT.TLS }),
	"messaging.mqtt.client_id":    stringSetter(func(c *Config) *string { return &c.Messaging.MQTT.ClientID }),
	"messaging.mqtt.username":     stringSetter(func(c *Config) *string { return &c.Messaging.MQTT.Username }),
	"messaging.mqtt.password":     stringSetter(func(c *Config) *string { return &c.Messaging.MQTT.Password }),
	"messaging.mqtt.qos":          intSetter(func(c *Config) *int { return &c.Messaging.MQTT.QoS }),
	"messaging.mqtt.topic_prefix": stringSetter(func(c *Config) *string { return &c.Messaging.MQTT.TopicPrefix }),
	"messaging.redis.url":         stringSetter(func(c *Config) *string { return &c.Messaging.Redis.URL }),
	"messaging.redis.channel":     stringSetter(func(c *Config) *string { return &c.Messaging.Redis.Channel }),
	"messaging.kafka.brokers":     listSetter(func(c *Config) *[]string { return &c.Messaging.Kafka.Brokers }),
	"messaging.kafka.topic":       stringSetter(func(c *Config) *string { return &c.Messaging.Kafka.Topic }),

	"influxdb.enabled":        boolSetter(func(c *Config) *bool { return &c.InfluxDB.Enabled }),
	"influxdb.url":            stringSetter(func(c *Config) *string { return &c.InfluxDB.URL }),
	"influxdb.token":          stringSetter(func(c *Config) *string { return &c.InfluxDB.Token }),
	"influxdb.org":            stringSetter(func(c *Config) *string { return &c.InfluxDB.Org }),
	"influxdb.bucket":         stringSetter(func(c *Config) *string { return &c.InfluxDB.Bucket }),
	"influxdb.batch_size":     intSetter(func(c *Config) *int { return &c.InfluxDB.BatchSize }),
	"influxdb.flush_interval": intSetter(func(c *Config) *int { return &c.InfluxDB.FlushInterval }),

	"logging.level":  stringSetter(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format": stringSetter(func(c *Config) *string { return &c.Logging.Format }),
	"logging.output": stringSetter(func(c *Config) *string { return &c.Logging.Output }),

	"metrics.enabled": boolSetter(func(c *Config) *bool { return &c.Metrics.Enabled }),
}

// Keys returns every recognised dotted key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable for a dotted key:
// "auth.keys" becomes LUCKPERMS_REST_AUTH_KEYS.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// NormalizeKey lower-cases a property key and strips PropertyPrefix.
func NormalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	return strings.TrimPrefix(k, PropertyPrefix)
}

// applyOverrides resolves each key from the environment, then properties.
// Unknown property keys and malformed values are reported together.
func applyOverrides(cfg *Config, lookupEnv func(string) (string, bool), props map[string]string) error {
	var errs []string

	normalized := make(map[string]string, len(props))
	for k, v := range props {
		nk := NormalizeKey(k)
		if _, ok := settings[nk]; !ok {
			errs = append(errs, fmt.Sprintf("unknown property %q", k))
			continue
		}
		normalized[nk] = v
	}

	for _, key := range Keys() {
		set := settings[key]
		if v, ok := lookupEnv(EnvName(key)); ok && v != "" {
			if err := set(cfg, v); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", EnvName(key), err))
			}
		}
		if v, ok := normalized[key]; ok {
			if err := set(cfg, v); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Every problem found, joined by "; ", or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.Idle < 0 {
		errs = append(errs, "timeouts must not be negative")
	}
	if c.Timeouts.Await < 1 {
		errs = append(errs, "timeouts.await must be at least 1 second")
	}
	if c.Heartbeat.Interval < 1 {
		errs = append(errs, "heartbeat.interval must be at least 1 second")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Messaging.Backend {
	case BackendNone:
	case BackendMQTT:
		if c.Messaging.MQTT.Host == "" {
			errs = append(errs, "messaging.mqtt.host is required")
		}
		if c.Messaging.MQTT.QoS < 0 || c.Messaging.MQTT.QoS > 2 {
			errs = append(errs, "messaging.mqtt.qos must be 0, 1, or 2")
		}
	case BackendRedis:
		if c.Messaging.Redis.URL == "" {
			errs = append(errs, "messaging.redis.url is required")
		}
	case BackendKafka:
		if len(c.Messaging.Kafka.Brokers) == 0 {
			errs = append(errs, "messaging.kafka.brokers is required")
		}
		if c.Messaging.Kafka.Topic == "" {
			errs = append(errs, "messaging.kafka.topic is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("messaging.backend must be one of none, mqtt, redis, kafka (got %q)", c.Messaging.Backend))
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Warnings lists settings that are valid but probably not intended.
func (c *Config) Warnings() []string {
	var w []string
	if c.Auth.Enabled && len(c.Auth.Keys) == 0 {
		w = append(w, "auth is enabled but auth.keys is empty: every request will be rejected")
	}
	return w
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// AwaitTimeout returns how long handlers wait for the engine.
func (c *Config) AwaitTimeout() time.Duration {
	return time.Duration(c.Timeouts.Await) * time.Second
}

// HeartbeatInterval returns the SSE ping period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.Interval) * time.Second
}
