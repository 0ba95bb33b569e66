package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "luckperms"

// Topics builds the gateway's MQTT topics under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "luckperms"}
//	topics.Update()              // "luckperms/update"
//	topics.Status("gateway-01")  // "luckperms/status/gateway-01"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Update returns the topic every instance publishes and consumes messages on.
//
// Example: luckperms/update
func (t Topics) Update() string {
	return fmt.Sprintf("%s/update", t.prefix())
}

// Status returns the retained online/offline topic of one instance.
//
// Example: luckperms/status/gateway-01
func (t Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/status/%s", t.prefix(), clientID)
}

// AllStatuses matches the status topic of every instance.
//
// Pattern: luckperms/status/+
func (t Topics) AllStatuses() string {
	return fmt.Sprintf("%s/status/+", t.prefix())
}
