// Package events fans session changes out to any number of observers.
//
// A Bridge implements session.Notifier. Each change becomes an Event with a
// sequence number and is appended to every subscriber's mailbox. Mailboxes
// are unbounded and drained by one goroutine per subscriber, so publishing
// never blocks the session manager and no subscriber ever misses an event,
// however slow it is. A subscriber sees events in exactly the order the
// manager produced them.
//
// Usage:
//
//	bridge := events.NewBridge()
//	mgr := session.New(cfg, transport, bridge)
//
//	sub := bridge.Subscribe()
//	defer sub.Close()
//	for ev := range sub.C() {
//	    fmt.Println(ev.Kind)
//	}
package events
