package session

import "errors"

// Domain-specific errors for session operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidPort is returned when connect is given a port that is not
	// a positive integer in the TCP range.
	ErrInvalidPort = errors.New("session: invalid port")

	// ErrInvalidHost is returned when connect is given an empty host.
	ErrInvalidHost = errors.New("session: host cannot be empty")

	// ErrInvalidOperation is returned when an operation is not permitted in
	// the current connection state (connect while connecting, publish while
	// disconnected, and so on). The session is left untouched.
	ErrInvalidOperation = errors.New("session: invalid operation for current state")

	// ErrTransportFailure is returned when the transport rejects a connect
	// attempt outright. The session moves to Failed.
	ErrTransportFailure = errors.New("session: transport failure")

	// ErrInvalidQoS is returned when a QoS level outside 0..2 is supplied.
	ErrInvalidQoS = errors.New("session: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty or malformed topics.
	ErrInvalidTopic = errors.New("session: invalid topic")

	// ErrPayloadTooLarge is returned when a publish payload exceeds maxPayloadSize.
	ErrPayloadTooLarge = errors.New("session: payload too large")

	// ErrSubscribeFailed is returned when the transport refuses a subscribe
	// or unsubscribe request. Connection status is not affected.
	ErrSubscribeFailed = errors.New("session: subscribe failed")

	// ErrPublishFailed is returned when the transport refuses to queue a publish.
	ErrPublishFailed = errors.New("session: publish failed")
)
