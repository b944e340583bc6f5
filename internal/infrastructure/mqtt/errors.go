package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an operation needs an open connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps errors reported by a connect token.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionLost is reported when a reconnect starts before the
	// client has delivered the error that ended the previous connection.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrPublishFailed wraps errors reported by a publish token.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps errors reported by a subscribe token.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps errors reported by an unsubscribe token.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrSubscriptionRefused is reported when the broker grants 0x80.
	ErrSubscriptionRefused = errors.New("mqtt: subscription refused by broker")
)
