package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nerrad567/mqttdesk/internal/events"
	"github.com/nerrad567/mqttdesk/internal/session"
)

const (
	// writeTimeout bounds each insert.
	writeTimeout = 5 * time.Second

	// pruneInterval is how many writes pass between prunes.
	pruneInterval = 100
)

// Source provides the events to journal. *events.Bridge satisfies it.
type Source interface {
	Subscribe() *events.Subscription
}

// Logger is the subset of slog-style logging the journal needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Journal writes session events to a Repository.
//
// Thread Safety: Start and Stop may be called from any goroutine.
type Journal struct {
	source Source
	repo   Repository
	broker func() string
	keep   int
	logger Logger

	mu      sync.Mutex
	sub     *events.Subscription
	done    chan struct{}
	written uint64
}

// NewJournal creates a Journal that keeps at most keep entries
// (0 = unbounded). broker labels each entry and may be nil.
func NewJournal(source Source, repo Repository, broker func() string, keep int) *Journal {
	if broker == nil {
		broker = func() string { return "" }
	}
	return &Journal{
		source: source,
		repo:   repo,
		broker: broker,
		keep:   keep,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger used for write failures and lifecycle messages.
func (j *Journal) SetLogger(logger Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// Start subscribes to the source. Calling Start twice is a no-op.
func (j *Journal) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sub != nil {
		return
	}

	j.sub = j.source.Subscribe()
	j.done = make(chan struct{})
	go j.run(ctx, j.sub, j.done)
}

// Stop ends the subscription and waits for pending writes to finish.
func (j *Journal) Stop() {
	j.mu.Lock()
	sub, done := j.sub, j.done
	j.sub, j.done = nil, nil
	j.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done
}

// Written returns the number of entries stored by the journal.
func (j *Journal) Written() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

func (j *Journal) run(ctx context.Context, sub *events.Subscription, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			entry, ok := entryFor(ev, j.broker())
			if !ok {
				continue
			}
			j.write(ctx, &entry)
		case <-ctx.Done():
			sub.Close()
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, entry *Entry) {
	// Pending entries are still written during shutdown.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := j.repo.Create(writeCtx, entry); err != nil {
		j.logger.Warn("audit write failed", "action", string(entry.Action), "error", err)
		return
	}

	j.mu.Lock()
	j.written++
	due := j.written%pruneInterval == 0
	j.mu.Unlock()

	if due && j.keep > 0 {
		if n, err := j.repo.Prune(writeCtx, j.keep); err != nil {
			j.logger.Warn("audit prune failed", "error", err)
		} else if n > 0 {
			j.logger.Debug("audit log pruned", "removed", n)
		}
	}
}

// entryFor maps a bridge event to an entry. Message events and transient
// phases are not journaled.
func entryFor(ev events.Event, broker string) (Entry, bool) {
	e := Entry{Source: SourceSession, Broker: broker, CreatedAt: ev.Time}

	switch ev.Kind {
	case events.KindStatusChanged:
		if ev.Status == nil {
			return Entry{}, false
		}
		switch ev.Status.Phase {
		case session.PhaseConnecting:
			e.Action = ActionConnecting
		case session.PhaseConnected:
			e.Action = ActionConnected
		case session.PhaseDisconnected:
			e.Action = ActionDisconnected
		case session.PhaseFailed:
			e.Action = ActionConnectFailed
			e.Details = map[string]any{"reason": ev.Status.Reason}
		default:
			return Entry{}, false
		}
	case events.KindSubscribed, events.KindSubscribeFailed, events.KindUnsubscribed:
		if ev.Subscription == nil {
			return Entry{}, false
		}
		e.Action = Action(ev.Subscription.Kind)
		e.Target = ev.Subscription.Topic
		e.Details = map[string]any{"qos": int(ev.Subscription.QoS)}
		if ev.Subscription.Error != "" {
			e.Details["error"] = ev.Subscription.Error
		}
	default:
		return Entry{}, false
	}
	return e, true
}
