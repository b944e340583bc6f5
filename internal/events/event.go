package events

import (
	"time"

	"github.com/nerrad567/mqttdesk/internal/messagelog"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// Kind names an event. The values double as WebSocket event types.
type Kind string

// Event kinds.
const (
	KindStatusChanged    Kind = "status_changed"
	KindConnectionFailed Kind = "connection_failed"
	KindMessageReceived  Kind = "message_received"
	KindMessagesCleared  Kind = "messages_cleared"
	KindSubscribed       Kind = "subscribed"
	KindSubscribeFailed  Kind = "subscribe_failed"
	KindUnsubscribed     Kind = "unsubscribed"
)

// Event is one observable change of a session.
// Only the fields relevant to Kind are set.
type Event struct {
	Seq  uint64    `json:"seq"`
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	// Status is set for KindStatusChanged.
	Status *session.Status `json:"status,omitempty"`

	// Reason is set for KindConnectionFailed.
	Reason string `json:"reason,omitempty"`

	// Record and LogLen are set for message events.
	Record *messagelog.Record `json:"record,omitempty"`
	LogLen int                `json:"log_len,omitempty"`

	// Subscription is set for the subscription kinds.
	Subscription *session.SubscriptionChange `json:"subscription,omitempty"`
}

func subscriptionKind(k session.SubscriptionChangeKind) Kind {
	switch k {
	case session.SubscriptionAcked:
		return KindSubscribed
	case session.SubscriptionFailed:
		return KindSubscribeFailed
	default:
		return KindUnsubscribed
	}
}
