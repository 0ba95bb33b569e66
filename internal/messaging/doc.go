// Package messaging keeps gateway instances that share a permission store in
// step.
//
// A Service implements perms.MessagingService over a Transport (MQTT, Redis
// or Kafka). Every message is a JSON envelope:
//
//	{"id": "...", "origin": "...", "type": "update|userupdate|log|custom", ...}
//
// Receivers skip their own messages and ids they have already handled.
// update and userupdate trigger a network sync on the engine; log and custom
// messages are republished on the engine's event bus as log-broadcast
// (origin remote) and custom-message-receive events.
package messaging
