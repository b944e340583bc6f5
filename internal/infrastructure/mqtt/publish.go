package mqtt

import (
	"fmt"
)

// Publish queues a message for the broker and returns without waiting.
//
// Delivery failures are logged; the session does not track publishes.
//
// Parameters:
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload
//   - qos: Quality of Service level (0, 1, or 2)
//   - retain: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: ErrNotConnected if no connection is open
func (t *Transport) Publish(topic string, payload []byte, qos byte, retain bool) error {
	client, _ := t.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retain, payload)

	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			if logger := t.getLogger(); logger != nil {
				logger.Warn("publish not delivered",
					"topic", topic,
					"qos", qos,
					"error", fmt.Errorf("%w: %w", ErrPublishFailed, err),
				)
			}
		}
	}()

	return nil
}
