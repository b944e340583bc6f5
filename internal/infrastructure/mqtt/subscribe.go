package mqtt

import (
	"fmt"

	"github.com/nerrad567/mqttdesk/internal/session"
)

// subackFailure is the granted QoS a broker uses to refuse a filter.
const subackFailure = 0x80

// Subscribe sends a SUBSCRIBE for topic and returns immediately.
//
// The returned identifier is echoed in the SubscribeAck delivered through
// OnSubscribe once the broker answers. Messages matching the filter reach
// OnMessage through the default publish handler.
//
// Parameters:
//   - topic: Topic filter, wildcards allowed
//   - qos: Requested maximum QoS (0, 1, or 2)
//
// Returns:
//   - uint16: Request identifier carried by the ack
//   - error: ErrNotConnected if no connection is open
func (t *Transport) Subscribe(topic string, qos byte) (uint16, error) {
	t.mu.Lock()
	client, gen := t.client, t.gen
	if client == nil || !client.IsConnectionOpen() {
		t.mu.Unlock()
		return 0, ErrNotConnected
	}
	id := t.nextRequestID()
	t.mu.Unlock()

	token := client.Subscribe(topic, qos, nil)

	go func() {
		token.Wait()
		ack := session.SubscribeAck{Topic: topic, MessageID: id}
		if err := token.Error(); err != nil {
			ack.Err = fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
		} else if res, ok := token.(interface{ Result() map[string]byte }); ok {
			if granted, found := res.Result()[topic]; found {
				ack.Granted = granted
				if granted == subackFailure {
					ack.Err = ErrSubscriptionRefused
				}
			}
		}
		t.dispatch(gen, func(h session.Handlers) {
			if h.OnSubscribe != nil {
				h.OnSubscribe(ack)
			}
		})
	}()

	return id, nil
}

// Unsubscribe sends an UNSUBSCRIBE for topic and returns immediately.
// Completion is reported through OnUnsubscribe.
func (t *Transport) Unsubscribe(topic string) (uint16, error) {
	t.mu.Lock()
	client, gen := t.client, t.gen
	if client == nil || !client.IsConnectionOpen() {
		t.mu.Unlock()
		return 0, ErrNotConnected
	}
	id := t.nextRequestID()
	t.mu.Unlock()

	token := client.Unsubscribe(topic)

	go func() {
		token.Wait()
		ack := session.UnsubscribeAck{Topic: topic, MessageID: id}
		if err := token.Error(); err != nil {
			ack.Err = fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
		}
		t.dispatch(gen, func(h session.Handlers) {
			if h.OnUnsubscribe != nil {
				h.OnUnsubscribe(ack)
			}
		})
	}()

	return id, nil
}
