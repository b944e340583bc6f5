package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Limits applied before anything reaches the transport.
const (
	// maxQoS is the highest MQTT QoS level.
	maxQoS = 2

	// maxPort is the highest TCP port number.
	maxPort = 65535

	// maxPayloadSize caps publish payloads at 1 MiB.
	maxPayloadSize = 1 << 20

	// maxTopicLength is the MQTT limit on UTF-8 encoded topic length.
	maxTopicLength = 65535
)

// LastWill is the message the broker publishes on the client's behalf if
// the connection drops without a clean disconnect.
type LastWill struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

// NewLastWill validates its arguments and builds a LastWill.
func NewLastWill(topic, payload string, qos int, retain bool) (LastWill, error) {
	q, err := checkQoS(qos)
	if err != nil {
		return LastWill{}, err
	}
	if err := ValidatePublishTopic(topic); err != nil {
		return LastWill{}, err
	}
	return LastWill{Topic: topic, Payload: payload, QoS: q, Retain: retain}, nil
}

// Credentials are the username and password presented at connect time.
type Credentials struct {
	Username string
	Password string
}

// ConnectParams are the user-supplied connection settings.
// Port is a string because it normally comes straight from a form field.
type ConnectParams struct {
	Host     string
	Port     string
	Username string
	Password string

	// Will, when set, replaces the pending last will, but only once the
	// connect has passed every check. A rejected connect leaves the
	// pending will untouched.
	Will *LastWill
}

// Subscription is a topic filter requested during the current session.
type Subscription struct {
	Topic     string `json:"topic"`
	QoS       byte   `json:"qos"`
	Granted   byte   `json:"granted"`
	MessageID uint16 `json:"message_id"`
	Acked     bool   `json:"acked"`
}

// ParsePort converts a user-supplied port into a TCP port number.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPort, s)
	}
	if port < 1 || port > maxPort {
		return 0, fmt.Errorf("%w: %d is outside 1-%d", ErrInvalidPort, port, maxPort)
	}
	return port, nil
}

// checkQoS validates a QoS level and narrows it to a byte.
func checkQoS(qos int) (byte, error) {
	if qos < 0 || qos > maxQoS {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return byte(qos), nil
}

// ValidatePublishTopic checks a topic name used for publishing or as a will.
// Topic names must be non-empty and must not contain wildcards.
func ValidatePublishTopic(topic string) error {
	if err := checkTopicBasics(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards are not allowed in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateTopicFilter checks a subscription filter.
// '+' must occupy a whole level and '#' must be the whole last level.
func ValidateTopicFilter(filter string) error {
	if err := checkTopicBasics(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: '#' must be the last level of %q", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: '+' must occupy a whole level of %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func checkTopicBasics(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains a NUL character", ErrInvalidTopic)
	}
	return nil
}
