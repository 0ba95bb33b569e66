package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps a single message at 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload on the update topic. It is never retained.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	if err := validatePublish(payload, c.qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := await(ctx, c.client.Publish(c.topics.Update(), c.qos, false, payload)); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func validatePublish(payload []byte, qos byte) error {
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}

// Subscribe delivers every update message to handler. The subscription is
// replayed on reconnect; a second call replaces the handler.
func (c *Client) Subscribe(handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	token := c.client.Subscribe(c.topics.Update(), c.qos, c.dispatch(handler))
	if err := await(context.Background(), token); err != nil {
		c.mu.Lock()
		c.handler = nil
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Subscribed reports whether a handler is installed.
func (c *Client) Subscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler != nil
}

// await waits for token, ctx or the publish timeout, whichever ends first.
func await(ctx context.Context, token pahomqtt.Token) error {
	timer := time.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no acknowledgement within %v", defaultPublishTimeout)
	}
}
