package session

import (
	"fmt"
	"time"
)

// ReturnCode is a CONNACK return code, or one of the engine-specific codes
// used when no CONNACK was received.
type ReturnCode byte

// Return codes. Values 0-5 are defined by MQTT 3.1.1; the two high values
// mirror the codes paho uses for failures below the protocol.
const (
	CodeAccepted                     ReturnCode = 0x00
	CodeRefusedProtocolVersion       ReturnCode = 0x01
	CodeRefusedIdentifierRejected    ReturnCode = 0x02
	CodeRefusedServerUnavailable     ReturnCode = 0x03
	CodeRefusedBadUsernameOrPassword ReturnCode = 0x04
	CodeRefusedNotAuthorised         ReturnCode = 0x05
	CodeNetworkError                 ReturnCode = 0xFE
	CodeProtocolViolation            ReturnCode = 0xFF
)

// String returns a human-readable description of the code.
func (c ReturnCode) String() string {
	switch c {
	case CodeAccepted:
		return "connection accepted"
	case CodeRefusedProtocolVersion:
		return "unacceptable protocol version"
	case CodeRefusedIdentifierRejected:
		return "identifier rejected"
	case CodeRefusedServerUnavailable:
		return "server unavailable"
	case CodeRefusedBadUsernameOrPassword:
		return "bad username or password"
	case CodeRefusedNotAuthorised:
		return "not authorised"
	case CodeNetworkError:
		return "network error"
	case CodeProtocolViolation:
		return "protocol violation"
	default:
		return fmt.Sprintf("return code %d", byte(c))
	}
}

// subackFailure is the granted-QoS value a broker uses to refuse a subscription.
const subackFailure = 0x80

// InboundMessage is a message delivered by the transport.
type InboundMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// SubscribeAck reports the broker's answer to a subscribe request.
// Err is set when the request failed locally or the broker refused it.
type SubscribeAck struct {
	Topic     string
	MessageID uint16
	Granted   byte
	Err       error
}

// UnsubscribeAck reports completion of an unsubscribe request.
type UnsubscribeAck struct {
	Topic     string
	MessageID uint16
	Err       error
}

// Handlers are the asynchronous callbacks a Transport invokes.
//
// They may be called from any goroutine. Implementations of Transport must
// not call them after the attempt that produced them has been superseded
// by a newer Connect.
type Handlers struct {
	OnConnect      func(code ReturnCode, err error)
	OnMessage      func(msg InboundMessage)
	OnDisconnect   func(code ReturnCode, err error)
	OnSubscribe    func(ack SubscribeAck)
	OnUnsubscribe  func(ack UnsubscribeAck)
	OnReconnecting func()
}

// Transport is the protocol engine a session runs on top of.
//
// It owns MQTT framing and socket I/O. None of its methods may block on the
// network: Connect, Disconnect, Subscribe, Unsubscribe and Publish dispatch
// work and report completion through Handlers.
type Transport interface {
	// SetHandlers registers the callbacks. Called once before first use.
	SetHandlers(h Handlers)

	// SetCredentials sets the username and password for the next Connect.
	// They are sent only when both are non-empty; otherwise the connect
	// is anonymous.
	SetCredentials(username, password string)

	// SetLastWill sets the will message for the next Connect.
	SetLastWill(will LastWill)

	// ClearLastWill removes any will for the next Connect.
	ClearLastWill()

	// Connect starts a connection attempt. The CONNACK (or failure) is
	// reported through Handlers.OnConnect.
	Connect(host string, port int, keepAlive time.Duration) error

	// StartLoop enables delivery of inbound messages.
	StartLoop()

	// StopLoop stops delivery of inbound messages. Lifecycle callbacks
	// (OnConnect, OnDisconnect) are still delivered.
	StopLoop()

	// Disconnect starts a graceful disconnect. Completion is reported
	// through Handlers.OnDisconnect.
	Disconnect() error

	// Subscribe sends a SUBSCRIBE and returns its packet identifier.
	// The SUBACK is reported through Handlers.OnSubscribe.
	Subscribe(topic string, qos byte) (uint16, error)

	// Unsubscribe sends an UNSUBSCRIBE and returns its packet identifier.
	Unsubscribe(topic string) (uint16, error)

	// Publish queues a message. Delivery is not awaited.
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// connectFailureReason builds the message carried by Failed and by the
// connection-failed notification.
func connectFailureReason(code ReturnCode, err error) string {
	switch {
	case err != nil && code != CodeAccepted:
		return fmt.Sprintf("connection failed with code %d (%s): %v", byte(code), code, err)
	case err != nil:
		return fmt.Sprintf("connection failed: %v", err)
	default:
		return fmt.Sprintf("connection failed with code %d (%s)", byte(code), code)
	}
}
