package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/mqttdesk/internal/messagelog"
)

// Manager defaults.
const (
	// DefaultKeepAlive matches the keepalive the desktop client always used.
	DefaultKeepAlive = 60 * time.Second

	// defaultEventBuffer is the capacity of the transport event queue.
	defaultEventBuffer = 256
)

// Config tunes a Manager.
type Config struct {
	// KeepAlive is passed to the transport on connect.
	KeepAlive time.Duration

	// ConnectTimeout moves a Connecting session to Failed when no CONNACK
	// arrives in time. Zero waits forever.
	ConnectTimeout time.Duration

	// DisconnectTimeout moves a Disconnecting session to Disconnected when
	// the transport never confirms. Zero waits forever.
	DisconnectTimeout time.Duration

	// MessageLogLimit bounds the message log (0 = unbounded).
	MessageLogLimit int

	// EventBuffer is the capacity of the transport event queue.
	EventBuffer int
}

// eventKind enumerates what the event loop can receive.
type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evMessage
	evSubscribe
	evUnsubscribe
	evReconnecting
	evConnectTimeout
	evDisconnectTimeout
)

// event is a transport callback (or timer) turned into a value so that it
// can be applied by the single event loop.
type event struct {
	kind     eventKind
	code     ReturnCode
	err      error
	msg      InboundMessage
	subAck   SubscribeAck
	unsubAck UnsubscribeAck
	timerSeq uint64
}

// Manager owns the broker connection's lifecycle.
//
// It turns the transport's asynchronous callbacks into an ordered state
// machine (Idle → Connecting → Connected → Disconnecting → Disconnected,
// with Failed reachable from Connecting) and guards every operation against
// the current state.
//
// Transport callbacks are queued on a channel and applied by one goroutine
// started with Start. Caller operations and the event loop share a single
// mutex, held for each read-modify-write, so every transition is atomic and
// notifications leave in the order the transitions happened.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	cfg       Config
	transport Transport
	state     *State
	log       *messagelog.Log
	notifier  Notifier
	logger    Logger

	events   chan event
	timer    *time.Timer
	timerSeq uint64

	// lossPending is set when a reconnect was reported while Connected,
	// before the transport reported the loss that caused it. That late
	// loss belongs to the old connection and must not end the new attempt.
	lossPending bool

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	stopped   chan struct{}
	wg        sync.WaitGroup
}

// New creates a Manager in Idle.
//
// The manager registers its handlers on the transport immediately. Start
// must be called before any transport event can be applied.
//
// Parameters:
//   - cfg: Timeouts, keepalive and message log bound
//   - transport: The protocol engine
//   - notifier: Receives every observable change (may be nil)
func New(cfg Config, transport Transport, notifier Notifier) *Manager {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	m := &Manager{
		cfg:       cfg,
		transport: transport,
		notifier:  notifier,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:    make(chan event, cfg.EventBuffer),
		stopped:   make(chan struct{}),
	}
	m.state = NewState(notifier.StatusChanged)
	m.log = messagelog.New(cfg.MessageLogLimit, notifier.MessagesChanged)

	transport.SetHandlers(Handlers{
		OnConnect: func(code ReturnCode, err error) {
			m.enqueue(event{kind: evConnect, code: code, err: err})
		},
		OnMessage: func(msg InboundMessage) {
			m.enqueue(event{kind: evMessage, msg: msg})
		},
		OnDisconnect: func(code ReturnCode, err error) {
			m.enqueue(event{kind: evDisconnect, code: code, err: err})
		},
		OnSubscribe: func(ack SubscribeAck) {
			m.enqueue(event{kind: evSubscribe, subAck: ack})
		},
		OnUnsubscribe: func(ack UnsubscribeAck) {
			m.enqueue(event{kind: evUnsubscribe, unsubAck: ack})
		},
		OnReconnecting: func() {
			m.enqueue(event{kind: evReconnecting})
		},
	})

	return m
}

// SetLogger sets the logger used for operation and event diagnostics.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// Start launches the event loop. It is safe to call more than once.
// The loop exits when ctx is cancelled or Close is called.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		var loopCtx context.Context
		loopCtx, m.cancel = context.WithCancel(ctx)
		m.wg.Add(1)
		go m.run(loopCtx)
	})
}

// Close disconnects a live session (best effort) and stops the event loop.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.Disconnect()

		m.mu.Lock()
		m.stopTimer()
		m.mu.Unlock()

		close(m.stopped)
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
	})
	return nil
}

// =============================================================================
// Operations
// =============================================================================

// Connect starts a connection attempt and returns without waiting for the
// broker. The outcome arrives as a status change (Connected or Failed).
//
// The pending last will (or p.Will, which replaces it) and the supplied
// credentials are handed to the transport before it is asked to connect.
//
// Returns:
//   - ErrInvalidOperation: a session is already connecting, connected or
//     disconnecting; the in-flight attempt is left alone
//   - ErrInvalidPort / ErrInvalidHost / ErrInvalidQoS / ErrInvalidTopic:
//     bad parameters; status and pending will are unchanged
//   - ErrTransportFailure: the transport refused to start; status is Failed
func (m *Manager) Connect(p ConnectParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.state.Status()
	if !current.CanConnect() {
		m.logger.Warn("connect rejected", "status", current.String())
		return fmt.Errorf("%w: cannot connect while %s", ErrInvalidOperation, current)
	}

	port, err := ParsePort(p.Port)
	if err != nil {
		return err
	}
	host := strings.TrimSpace(p.Host)
	if host == "" {
		return ErrInvalidHost
	}
	if p.Will != nil {
		w, err := NewLastWill(p.Will.Topic, p.Will.Payload, int(p.Will.QoS), p.Will.Retain)
		if err != nil {
			return err
		}
		m.state.SetPendingWill(w)
	}

	m.lossPending = false
	creds := Credentials{Username: p.Username, Password: p.Password}
	will, hasWill := m.state.beginAttempt(net.JoinHostPort(host, strconv.Itoa(port)), creds)
	m.state.SetStatus(StatusConnecting)

	m.transport.SetCredentials(creds.Username, creds.Password)
	if hasWill {
		m.transport.SetLastWill(will)
	} else {
		m.transport.ClearLastWill()
	}

	m.logger.Info("connecting to broker",
		"host", host,
		"port", port,
		"username", creds.Username,
		"last_will", hasWill,
	)

	if err := m.transport.Connect(host, port, m.cfg.KeepAlive); err != nil {
		m.fail(connectFailureReason(CodeNetworkError, err))
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	m.transport.StartLoop()
	m.armTimer(evConnectTimeout, m.cfg.ConnectTimeout)

	return nil
}

// Disconnect tears down the session. It is a harmless no-op when nothing is
// connected or a disconnect is already under way.
//
// Inbound processing is stopped before the protocol disconnect is issued so
// that no late message is logged once teardown has begun. The status moves
// to Disconnecting immediately; Disconnected follows when the transport
// confirms (or when DisconnectTimeout expires).
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.state.Status()
	if !current.IsLive() {
		m.logger.Debug("disconnect ignored", "status", current.String())
		return
	}

	m.stopTimer()
	m.lossPending = false
	m.transport.StopLoop()
	err := m.transport.Disconnect()
	m.state.SetStatus(StatusDisconnecting)

	if err != nil {
		// Nothing will call back; settle the state here.
		m.logger.Warn("transport disconnect failed", "error", err)
		m.toDisconnected()
		return
	}
	m.armTimer(evDisconnectTimeout, m.cfg.DisconnectTimeout)
}

// SetLastWill stores the will for the next connect.
//
// A will is transmitted at connect time only. When a session is already
// connecting or connected the new will does NOT change the live session; it
// is kept for the next Connect and deferred is returned as true.
//
// Returns:
//   - deferred: true when the will only applies to a future connect
//   - error: ErrInvalidQoS or ErrInvalidTopic
func (m *Manager) SetLastWill(topic, payload string, qos int, retain bool) (deferred bool, err error) {
	will, err := NewLastWill(topic, payload, qos, retain)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.SetPendingWill(will)
	deferred = m.state.Status().IsLive()
	if deferred {
		m.logger.Info("last will stored for next connect; current session unchanged", "topic", topic)
	} else {
		m.logger.Debug("last will set", "topic", topic, "qos", qos, "retain", retain)
	}
	return deferred, nil
}

// ClearLastWill removes the will for the next connect.
// Like SetLastWill, it does not affect a live session.
func (m *Manager) ClearLastWill() (deferred bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ClearPendingWill()
	return m.state.Status().IsLive()
}

// Subscribe requests a subscription on the live session.
//
// It is refused with ErrInvalidOperation unless the session is Connected,
// in which case nothing reaches the transport. A transport rejection is
// reported (returned and notified) without touching the connection status.
// The broker's SUBACK arrives later as a subscription notification.
func (m *Manager) Subscribe(topic string, qos int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireConnected("subscribe", topic); err != nil {
		return err
	}
	q, err := checkQoS(qos)
	if err != nil {
		return err
	}
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}

	id, err := m.transport.Subscribe(topic, q)
	if err != nil {
		m.logger.Warn("subscribe failed", "topic", topic, "error", err)
		m.notifier.SubscriptionChanged(SubscriptionChange{
			Kind:  SubscriptionFailed,
			Topic: topic,
			QoS:   q,
			Error: err.Error(),
		})
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	m.state.putSubscription(Subscription{Topic: topic, QoS: q, MessageID: id})
	m.logger.Info("subscribe requested", "topic", topic, "qos", q, "message_id", id)
	return nil
}

// Unsubscribe removes a subscription from the live session.
// Same guards as Subscribe.
func (m *Manager) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireConnected("unsubscribe", topic); err != nil {
		return err
	}
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}

	if _, err := m.transport.Unsubscribe(topic); err != nil {
		m.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	m.state.removeSubscription(topic)
	return nil
}

// Publish sends a message on the live session without waiting for delivery.
// QoS handling is left to the transport.
//
// It is refused with ErrInvalidOperation unless the session is Connected,
// in which case nothing reaches the transport.
func (m *Manager) Publish(topic string, payload []byte, qos int, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireConnected("publish", topic); err != nil {
		return err
	}
	q, err := checkQoS(qos)
	if err != nil {
		return err
	}
	if err := ValidatePublishTopic(topic); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}

	if err := m.transport.Publish(topic, payload, q, retain); err != nil {
		m.logger.Warn("publish failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// ClearMessages empties the message log.
func (m *Manager) ClearMessages() {
	m.log.Clear()
}

// =============================================================================
// Reads
// =============================================================================

// Status returns the current connection status.
func (m *Manager) Status() Status {
	return m.state.Status()
}

// Snapshot returns a consistent copy of the session state.
func (m *Manager) Snapshot() Snapshot {
	return m.state.Snapshot()
}

// Broker returns host:port of the current or most recent attempt.
func (m *Manager) Broker() string {
	return m.state.Broker()
}

// Messages returns the received messages, newest first.
func (m *Manager) Messages() []messagelog.Record {
	return m.log.Records()
}

// MessageCount returns the number of logged messages.
func (m *Manager) MessageCount() int {
	return m.log.Len()
}

// =============================================================================
// Event loop
// =============================================================================

// enqueue hands a transport event to the loop. After Close it drops events.
func (m *Manager) enqueue(ev event) {
	select {
	case m.events <- ev:
	case <-m.stopped:
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.apply(ev)
		}
	}
}

// apply performs the transition for one event under the manager lock.
func (m *Manager) apply(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session event panic recovered", "event", int(ev.kind), "panic", r)
		}
	}()

	switch ev.kind {
	case evConnect:
		m.onConnectAck(ev.code, ev.err)
	case evDisconnect:
		m.onDisconnected(ev.code, ev.err)
	case evMessage:
		m.onMessage(ev.msg)
	case evSubscribe:
		m.onSubscribeAck(ev.subAck)
	case evUnsubscribe:
		m.onUnsubscribeAck(ev.unsubAck)
	case evReconnecting:
		m.onReconnecting()
	case evConnectTimeout, evDisconnectTimeout:
		m.onTimeout(ev)
	}
}

func (m *Manager) onConnectAck(code ReturnCode, err error) {
	current := m.state.Status()
	if current.Phase != PhaseConnecting {
		m.logger.Debug("stale connect ack ignored", "status", current.String(), "code", int(code))
		return
	}

	m.stopTimer()
	m.lossPending = false
	if code == CodeAccepted && err == nil {
		m.state.SetStatus(StatusConnected)
		m.logger.Info("connected to broker")
		return
	}

	m.transport.StopLoop()
	m.fail(connectFailureReason(code, err))
}

// onDisconnected applies a transport disconnect. It only matters while a
// session is live or closing; in Idle, Disconnected and Failed there is no
// session left to end, and a Failed reason must not be overwritten.
func (m *Manager) onDisconnected(code ReturnCode, err error) {
	current := m.state.Status()
	switch current.Phase {
	case PhaseConnecting, PhaseConnected, PhaseDisconnecting:
	default:
		m.logger.Debug("disconnect event ignored", "status", current.String())
		return
	}

	if current.Phase == PhaseConnecting && m.lossPending {
		m.lossPending = false
		m.logger.Debug("late connection loss ignored during reconnect", "error", err)
		return
	}

	if current.Phase != PhaseDisconnecting {
		m.logger.Warn("connection lost", "code", int(code), "error", err)
		m.transport.StopLoop()
	} else {
		m.logger.Info("disconnected from broker")
	}
	m.toDisconnected()
}

func (m *Manager) onMessage(msg InboundMessage) {
	if m.state.Status().Phase != PhaseConnected {
		m.logger.Debug("message dropped outside connected session", "topic", msg.Topic)
		return
	}

	if _, err := m.log.Append(msg.Topic, msg.Payload, msg.QoS, msg.Retained); err != nil {
		m.logger.Warn("dropping undecodable message", "topic", msg.Topic, "error", err)
	}
}

func (m *Manager) onSubscribeAck(ack SubscribeAck) {
	if m.state.Status().Phase != PhaseConnected {
		return
	}

	if ack.Err != nil || ack.Granted == subackFailure {
		reason := "refused by broker"
		if ack.Err != nil {
			reason = ack.Err.Error()
		}
		m.state.removeSubscription(ack.Topic)
		m.logger.Warn("subscription failed", "topic", ack.Topic, "error", reason)
		m.notifier.SubscriptionChanged(SubscriptionChange{
			Kind:      SubscriptionFailed,
			Topic:     ack.Topic,
			MessageID: ack.MessageID,
			Error:     reason,
		})
		return
	}

	sub, ok := m.state.ackSubscription(ack.Topic, ack.MessageID, ack.Granted)
	if !ok {
		m.logger.Debug("ack for unknown subscription", "topic", ack.Topic, "message_id", ack.MessageID)
		return
	}
	m.logger.Info("subscribed", "topic", sub.Topic, "granted_qos", sub.Granted)
	m.notifier.SubscriptionChanged(SubscriptionChange{
		Kind:      SubscriptionAcked,
		Topic:     sub.Topic,
		QoS:       sub.Granted,
		MessageID: sub.MessageID,
	})
}

func (m *Manager) onUnsubscribeAck(ack UnsubscribeAck) {
	if m.state.Status().Phase != PhaseConnected {
		return
	}
	change := SubscriptionChange{
		Kind:      SubscriptionRemoved,
		Topic:     ack.Topic,
		MessageID: ack.MessageID,
	}
	if ack.Err != nil {
		change.Error = ack.Err.Error()
	}
	m.notifier.SubscriptionChanged(change)
}

// onReconnecting applies an automatic reconnect attempt. The transport may
// report it before the loss of the previous connection; from Connected the
// reconnect itself ends the old session and the loss that follows is ignored.
func (m *Manager) onReconnecting() {
	switch m.state.Status().Phase {
	case PhaseDisconnected:
	case PhaseConnected:
		m.logger.Warn("connection lost, reconnecting")
		m.transport.StopLoop()
		m.toDisconnected()
		m.lossPending = true
	default:
		m.logger.Debug("reconnect event ignored", "status", m.state.Status().String())
		return
	}
	m.logger.Info("reconnecting to broker")
	m.state.SetStatus(StatusConnecting)
	m.transport.StartLoop()
	m.armTimer(evConnectTimeout, m.cfg.ConnectTimeout)
}

func (m *Manager) onTimeout(ev event) {
	if ev.timerSeq != m.timerSeq {
		return
	}
	m.timer = nil

	current := m.state.Status()
	switch {
	case ev.kind == evConnectTimeout && current.Phase == PhaseConnecting:
		m.logger.Warn("connect timed out", "timeout", m.cfg.ConnectTimeout)
		m.transport.StopLoop()
		if err := m.transport.Disconnect(); err != nil {
			m.logger.Debug("transport disconnect after timeout failed", "error", err)
		}
		m.fail(fmt.Sprintf("connect timed out after %s", m.cfg.ConnectTimeout))
	case ev.kind == evDisconnectTimeout && current.Phase == PhaseDisconnecting:
		m.logger.Warn("disconnect not confirmed by transport", "timeout", m.cfg.DisconnectTimeout)
		m.toDisconnected()
	}
}

// =============================================================================
// Helpers (m.mu held)
// =============================================================================

func (m *Manager) requireConnected(op, topic string) error {
	current := m.state.Status()
	if current.Phase == PhaseConnected {
		return nil
	}
	m.logger.Info(op+" ignored: not connected", "topic", topic, "status", current.String())
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidOperation, op, current)
}

// fail moves the session to Failed and reports the reason outward.
func (m *Manager) fail(reason string) {
	m.stopTimer()
	m.state.endSession()
	m.state.SetStatus(Failed(reason))
	m.logger.Warn("connection failed", "reason", reason)
	m.notifier.ConnectionFailed(reason)
}

func (m *Manager) toDisconnected() {
	m.stopTimer()
	m.state.endSession()
	m.state.SetStatus(StatusDisconnected)
}

// armTimer schedules a timeout event. A zero duration disables it.
func (m *Manager) armTimer(kind eventKind, d time.Duration) {
	m.stopTimer()
	if d <= 0 {
		return
	}
	m.timerSeq++
	seq := m.timerSeq
	m.timer = time.AfterFunc(d, func() {
		m.enqueue(event{kind: kind, timerSeq: seq})
	})
}

// stopTimer cancels any pending timeout. Bumping the sequence also
// invalidates a timer that already fired but is still queued.
func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}
