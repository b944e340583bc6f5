package events

import (
	"sync"
	"time"

	"github.com/nerrad567/mqttdesk/internal/messagelog"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// Bridge turns session notifications into Events and delivers them to
// subscribers.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[*Subscription]struct{}
	closed bool
	now    func() time.Time
}

// NewBridge creates a Bridge with no subscribers.
func NewBridge() *Bridge {
	return &Bridge{
		subs: make(map[*Subscription]struct{}),
		now:  time.Now,
	}
}

// Compile-time check that Bridge satisfies the manager's notifier.
var _ session.Notifier = (*Bridge)(nil)

// StatusChanged implements session.Notifier.
func (b *Bridge) StatusChanged(s session.Status) {
	b.publish(Event{Kind: KindStatusChanged, Status: &s})
}

// ConnectionFailed implements session.Notifier.
func (b *Bridge) ConnectionFailed(reason string) {
	b.publish(Event{Kind: KindConnectionFailed, Reason: reason})
}

// MessagesChanged implements session.Notifier.
func (b *Bridge) MessagesChanged(c messagelog.Change) {
	ev := Event{Kind: KindMessagesCleared, LogLen: c.Len}
	if c.Kind == messagelog.ChangeAppended && c.Record != nil {
		rec := *c.Record
		ev.Kind = KindMessageReceived
		ev.Record = &rec
	}
	b.publish(ev)
}

// SubscriptionChanged implements session.Notifier.
func (b *Bridge) SubscriptionChanged(c session.SubscriptionChange) {
	b.publish(Event{Kind: subscriptionKind(c.Kind), Subscription: &c})
}

// Subscribe registers a new observer. It receives every event published
// after this call. The caller must Close the subscription when done.
func (b *Bridge) Subscribe() *Subscription {
	sub := newSubscription(b)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.stop()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// SubscriberCount returns the number of open subscriptions.
func (b *Bridge) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later events are discarded.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
}

// publish stamps an event and appends it to every mailbox. Sequence
// assignment and delivery share the lock so all subscribers agree on order.
func (b *Bridge) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.seq++
	ev.Seq = b.seq
	ev.Time = b.now().UTC()

	for sub := range b.subs {
		sub.push(ev)
	}
}

func (b *Bridge) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}
