package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // ms
	defaultKeepAlive         = 60 * time.Second

	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = time.Minute

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL returns tcp://host:port, or ssl://host:port when TLS is enabled.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

// buildClientOptions maps the messaging.mqtt section onto paho options with
// auto-reconnect and a clean session.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// Peers only care about messages sent while they are online.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInitialDelay)
	opts.SetMaxReconnectInterval(reconnectMaxDelay)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// configureLWT makes the broker publish an offline status for this instance
// if it disconnects without saying goodbye.
//
// Topic: <prefix>/status/<client_id>
// QoS: 1
// Retained: true
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetWill(topics.Status(clientID), statusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// statusPayload builds the JSON body of a status message. reason may be empty.
func statusPayload(clientID, status, reason string) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`, status, clientID, ts)
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`, status, clientID, reason, ts)
}
