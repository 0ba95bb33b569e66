// Package mqtt provides MQTT connectivity for the gateway's messaging
// transport.
//
// The client reconnects on its own, replays its subscription and leaves a
// Last Will that marks the instance offline.
//
// # Topics
//
// Every gateway sharing a permission store publishes and consumes on one
// update topic, and keeps a retained status message under its client id:
//
//	luckperms/update
//	luckperms/status/<client_id>
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Messaging.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(func(payload []byte) error { return handle(payload) })
//	err = client.Publish(ctx, encoded)
package mqtt
