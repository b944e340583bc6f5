package events

import "sync"

// Subscription is one observer's view of a Bridge.
//
// Events are queued in an unbounded mailbox and delivered on C by a
// dedicated goroutine. C is closed once the subscription is closed.
type Subscription struct {
	bridge *Bridge

	mu      sync.Mutex
	pending []Event
	wake    chan struct{}

	out  chan Event
	done chan struct{}
	once sync.Once
}

func newSubscription(b *Bridge) *Subscription {
	s := &Subscription{
		bridge: b,
		wake:   make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go s.deliver()
	return s
}

// C returns the channel events are delivered on.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Pending returns the number of queued events not yet received.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close unregisters the subscription and stops delivery. Queued events
// that were not received are discarded. Safe to call more than once.
func (s *Subscription) Close() {
	s.bridge.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// push appends to the mailbox without blocking.
func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) deliver() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.pending[0]
		s.pending[0] = Event{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
