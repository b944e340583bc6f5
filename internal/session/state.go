package session

import (
	"sort"
	"sync"
)

// State is the authoritative record of one session: connection status,
// last will, credentials and the subscriptions made since connecting.
//
// The ConnectionManager is its only writer. Reads are safe from any goroutine.
type State struct {
	mu sync.RWMutex

	status Status

	// pendingWill is sent with the next Connect; activeWill is what the
	// current (or last) attempt was opened with.
	pendingWill *LastWill
	activeWill  *LastWill

	// broker is host:port of the current (or last) attempt.
	broker        string
	credentials   Credentials
	subscriptions map[string]Subscription

	onStatus func(Status)
}

// Snapshot is a consistent copy of State for presentation.
// The password is never included.
type Snapshot struct {
	Status        Status         `json:"status"`
	Broker        string         `json:"broker,omitempty"`
	PendingWill   *LastWill      `json:"pending_will,omitempty"`
	ActiveWill    *LastWill      `json:"active_will,omitempty"`
	Username      string         `json:"username,omitempty"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// NewState creates a State in Idle.
// onStatus is invoked once for every status change (may be nil).
func NewState(onStatus func(Status)) *State {
	return &State{
		status:        StatusIdle,
		subscriptions: make(map[string]Subscription),
		onStatus:      onStatus,
	}
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus assigns a new status and reports whether it changed.
// The change callback fires only when the value differs from the current one.
func (s *State) SetStatus(st Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == st {
		return false
	}
	s.status = st
	if s.onStatus != nil {
		s.onStatus(st)
	}
	return true
}

// PendingWill returns the will that the next connect will send.
func (s *State) PendingWill() (LastWill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pendingWill == nil {
		return LastWill{}, false
	}
	return *s.pendingWill, true
}

// SetPendingWill replaces the will used by the next connect.
func (s *State) SetPendingWill(w LastWill) {
	s.mu.Lock()
	s.pendingWill = &w
	s.mu.Unlock()
}

// ClearPendingWill removes the will for the next connect.
func (s *State) ClearPendingWill() {
	s.mu.Lock()
	s.pendingWill = nil
	s.mu.Unlock()
}

// ActiveWill returns the will the current attempt was opened with.
func (s *State) ActiveWill() (LastWill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeWill == nil {
		return LastWill{}, false
	}
	return *s.activeWill, true
}

// Credentials returns the credentials of the current attempt.
func (s *State) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credentials
}

// Broker returns host:port of the current or most recent attempt.
func (s *State) Broker() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broker
}

// beginAttempt records the target and credentials for a new attempt,
// freezes the pending will as the active one and forgets old subscriptions.
func (s *State) beginAttempt(broker string, creds Credentials) (LastWill, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broker = broker
	s.credentials = creds
	s.subscriptions = make(map[string]Subscription)
	if s.pendingWill == nil {
		s.activeWill = nil
		return LastWill{}, false
	}
	w := *s.pendingWill
	s.activeWill = &w
	return w, true
}

// endSession forgets everything tied to the live connection.
func (s *State) endSession() {
	s.mu.Lock()
	s.subscriptions = make(map[string]Subscription)
	s.activeWill = nil
	s.mu.Unlock()
}

func (s *State) putSubscription(sub Subscription) {
	s.mu.Lock()
	s.subscriptions[sub.Topic] = sub
	s.mu.Unlock()
}

// ackSubscription marks a pending subscription as granted. It returns false
// if the topic is unknown or the ack belongs to an older request.
func (s *State) ackSubscription(topic string, messageID uint16, granted byte) (Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[topic]
	if !ok || sub.MessageID != messageID {
		return Subscription{}, false
	}
	sub.Acked = true
	sub.Granted = granted
	s.subscriptions[topic] = sub
	return sub, true
}

func (s *State) removeSubscription(topic string) {
	s.mu.Lock()
	delete(s.subscriptions, topic)
	s.mu.Unlock()
}

// Subscriptions returns the session's subscriptions sorted by topic.
func (s *State) Subscriptions() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedSubscriptions()
}

func (s *State) sortedSubscriptions() []Subscription {
	subs := make([]Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Topic < subs[j].Topic
	})
	return subs
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:        s.status,
		Broker:        s.broker,
		Username:      s.credentials.Username,
		Subscriptions: s.sortedSubscriptions(),
	}
	if s.pendingWill != nil {
		w := *s.pendingWill
		snap.PendingWill = &w
	}
	if s.activeWill != nil {
		w := *s.activeWill
		snap.ActiveWill = &w
	}
	return snap
}
