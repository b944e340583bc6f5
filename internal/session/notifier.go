package session

import "github.com/nerrad567/mqttdesk/internal/messagelog"

// SubscriptionChangeKind identifies the outcome of a (un)subscribe request.
type SubscriptionChangeKind string

// Subscription change kinds.
const (
	SubscriptionAcked   SubscriptionChangeKind = "subscribed"
	SubscriptionFailed  SubscriptionChangeKind = "subscribe_failed"
	SubscriptionRemoved SubscriptionChangeKind = "unsubscribed"
)

// SubscriptionChange describes a completed subscription request.
type SubscriptionChange struct {
	Kind      SubscriptionChangeKind `json:"kind"`
	Topic     string                 `json:"topic"`
	QoS       byte                   `json:"qos"`
	MessageID uint16                 `json:"message_id,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Notifier receives every observable change made by a Manager.
//
// Methods are called with the manager's lock held, in the order the changes
// happened, so implementations must return quickly and must not call back
// into the Manager.
type Notifier interface {
	StatusChanged(s Status)
	ConnectionFailed(reason string)
	MessagesChanged(c messagelog.Change)
	SubscriptionChanged(c SubscriptionChange)
}

// Logger is the subset of slog-style logging the manager needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(Status) {}
func (nopNotifier) ConnectionFailed(string) {}
func (nopNotifier) MessagesChanged(messagelog.Change) {}
func (nopNotifier) SubscriptionChanged(SubscriptionChange) {}
