package telemetry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nerrad567/mqttdesk/internal/events"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// Sink receives telemetry points. *influxdb.Client satisfies it.
type Sink interface {
	WriteSessionStatus(broker, phase, reason string, at time.Time)
	WriteMessageReceived(broker, topic string, qos byte, retained bool, size int, at time.Time)
	WriteConnectionFailure(broker, reason string, at time.Time)
}

// Source provides the events to record.
type Source interface {
	Subscribe() *events.Subscription
}

// BrokerFunc returns the broker label for the session being recorded.
type BrokerFunc func() string

// Logger is the subset of slog-style logging the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Recorder forwards bridge events to a Sink.
//
// Thread Safety: Start and Stop may be called from any goroutine.
type Recorder struct {
	source Source
	sink   Sink
	broker BrokerFunc
	logger Logger

	mu       sync.Mutex
	sub      *events.Subscription
	done     chan struct{}
	recorded uint64
}

// NewRecorder creates a Recorder. broker may be nil, in which case points
// carry an empty broker tag.
func NewRecorder(source Source, sink Sink, broker BrokerFunc) *Recorder {
	if broker == nil {
		broker = func() string { return "" }
	}
	return &Recorder{
		source: source,
		sink:   sink,
		broker: broker,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger used for lifecycle messages.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Start subscribes to the source and records events until ctx is cancelled
// or Stop is called. Calling Start on a running recorder is a no-op.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}

	r.sub = r.source.Subscribe()
	r.done = make(chan struct{})
	go r.run(ctx, r.sub, r.done)
	r.logger.Info("telemetry recorder started")
}

// Stop ends the subscription and waits for the recording goroutine to exit.
func (r *Recorder) Stop() {
	r.mu.Lock()
	sub, done := r.sub, r.done
	r.sub, r.done = nil, nil
	r.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done
	r.logger.Info("telemetry recorder stopped", "recorded", r.Recorded())
}

// Recorded returns the number of points written so far.
func (r *Recorder) Recorded() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}

func (r *Recorder) run(ctx context.Context, sub *events.Subscription, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if r.record(ev) {
				r.mu.Lock()
				r.recorded++
				r.mu.Unlock()
			}
		case <-ctx.Done():
			sub.Close()
			return
		}
	}
}

// record writes the point for ev and reports whether one was written.
func (r *Recorder) record(ev events.Event) bool {
	broker := r.broker()

	switch ev.Kind {
	case events.KindStatusChanged:
		if ev.Status == nil {
			return false
		}
		reason := ""
		if ev.Status.Phase == session.PhaseFailed {
			reason = ev.Status.Reason
		}
		r.sink.WriteSessionStatus(broker, ev.Status.Phase.String(), reason, ev.Time)
	case events.KindConnectionFailed:
		r.sink.WriteConnectionFailure(broker, ev.Reason, ev.Time)
	case events.KindMessageReceived:
		if ev.Record == nil {
			return false
		}
		rec := ev.Record
		r.sink.WriteMessageReceived(broker, rec.Topic, rec.QoS, rec.Retained, rec.Size, rec.ReceivedAt)
	default:
		r.logger.Debug("telemetry ignores event", "kind", string(ev.Kind))
		return false
	}
	return true
}
