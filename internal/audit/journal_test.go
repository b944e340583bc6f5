package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqttdesk/internal/events"
	"github.com/nerrad567/mqttdesk/internal/messagelog"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu      sync.Mutex
	entries []Entry
	prunes  []int
}

func (m *memRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memRepo) List(context.Context, Filter) (*Page, error) {
	return nil, nil
}

func (m *memRepo) Prune(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes = append(m.prunes, keep)
	return 0, nil
}

func (m *memRepo) snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func waitForEntries(t *testing.T, repo *memRepo, n int) []Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries := repo.snapshot()
		if len(entries) >= n {
			return entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d entries, want %d", len(entries), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJournal_RecordsSessionEvents(t *testing.T) {
	bridge := events.NewBridge()
	defer bridge.Close()
	repo := &memRepo{}

	j := NewJournal(bridge, repo, func() string { return "broker.local:1883" }, 0)
	j.Start(context.Background())
	defer j.Stop()

	bridge.StatusChanged(session.StatusConnecting)
	bridge.StatusChanged(session.StatusConnected)
	bridge.MessagesChanged(messagelog.Change{
		Kind:   messagelog.ChangeAppended,
		Record: &messagelog.Record{Topic: "a/b"},
		Len:    1,
	})
	bridge.SubscriptionChanged(session.SubscriptionChange{Kind: session.SubscriptionAcked, Topic: "a/#", QoS: 1})
	bridge.SubscriptionChanged(session.SubscriptionChange{Kind: session.SubscriptionFailed, Topic: "b", Error: "refused"})
	bridge.StatusChanged(session.StatusDisconnecting)
	bridge.StatusChanged(session.StatusDisconnected)
	bridge.StatusChanged(session.Failed("connect timed out after 15s"))

	entries := waitForEntries(t, repo, 6)

	want := []struct {
		action Action
		target string
	}{
		{ActionConnecting, ""},
		{ActionConnected, ""},
		{ActionSubscribed, "a/#"},
		{ActionSubscribeFailed, "b"},
		{ActionDisconnected, ""},
		{ActionConnectFailed, ""},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.Action != w.action || e.Target != w.target {
			t.Errorf("entry %d = %s %q, want %s %q", i, e.Action, e.Target, w.action, w.target)
		}
		if e.Broker != "broker.local:1883" || e.Source != SourceSession {
			t.Errorf("entry %d broker/source = %q/%q", i, e.Broker, e.Source)
		}
		if e.CreatedAt.IsZero() {
			t.Errorf("entry %d has no timestamp", i)
		}
	}
	if entries[3].Details["error"] != "refused" {
		t.Errorf("subscribe_failed details = %v", entries[3].Details)
	}
	if entries[5].Details["reason"] != "connect timed out after 15s" {
		t.Errorf("connect_failed details = %v", entries[5].Details)
	}
}

func TestJournal_Prunes(t *testing.T) {
	bridge := events.NewBridge()
	defer bridge.Close()
	repo := &memRepo{}

	j := NewJournal(bridge, repo, nil, 25)
	j.Start(context.Background())

	for i := 0; i < pruneInterval; i++ {
		bridge.StatusChanged(session.StatusConnecting)
		bridge.StatusChanged(session.StatusConnected)
	}
	waitForEntries(t, repo, 2*pruneInterval)
	j.Stop()

	if j.Written() != 2*pruneInterval {
		t.Errorf("Written() = %d, want %d", j.Written(), 2*pruneInterval)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.prunes) != 2 || repo.prunes[0] != 25 {
		t.Errorf("prunes = %v, want two prunes keeping 25", repo.prunes)
	}
}

func TestJournal_StopIsIdempotent(t *testing.T) {
	bridge := events.NewBridge()
	defer bridge.Close()

	j := NewJournal(bridge, &memRepo{}, nil, 0)
	j.Stop()
	j.Start(context.Background())
	j.Start(context.Background())
	if n := bridge.SubscriberCount(); n != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", n)
	}
	j.Stop()
	j.Stop()
	if n := bridge.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount() after Stop = %d, want 0", n)
	}
}
