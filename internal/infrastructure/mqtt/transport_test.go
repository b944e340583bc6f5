package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttdesk/internal/infrastructure/config"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeToken completes when done is closed.
type fakeToken struct {
	done   chan struct{}
	err    error
	rc     byte
	result map[string]byte
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) ReturnCode() byte               { return t.rc }
func (t *fakeToken) Result() map[string]byte        { return t.result }

// fakeClient records calls made by the transport. Methods it does not
// override panic through the nil embedded interface.
type fakeClient struct {
	pahomqtt.Client

	opts *pahomqtt.ClientOptions

	mu             sync.Mutex
	open           bool
	connectToken   *fakeToken
	subscribeToken *fakeToken
	calls          []string
	quiesce        []uint
	published      []string
}

func (c *fakeClient) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeClient) callLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Connect() pahomqtt.Token {
	c.record("connect")
	if c.connectToken != nil {
		return c.connectToken
	}
	return doneToken(nil)
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.open = false
	c.quiesce = append(c.quiesce, quiesce)
	c.mu.Unlock()
	c.record("disconnect")
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	c.published = append(c.published, topic+"="+string(payload.([]byte)))
	c.mu.Unlock()
	c.record("publish " + topic)
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(topic string, qos byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.record("subscribe " + topic)
	if c.subscribeToken != nil {
		return c.subscribeToken
	}
	t := doneToken(nil)
	t.result = map[string]byte{topic: qos}
	return t
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.record("unsubscribe " + strings.Join(topics, ","))
	return doneToken(nil)
}

// fakeMessage is an inbound PUBLISH.
type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
	qos     byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Qos() byte       { return m.qos }
func (m fakeMessage) Retained() bool  { return false }

// handlerEvent is one callback the transport raised.
type handlerEvent struct {
	kind  string
	code  session.ReturnCode
	err   error
	msg   session.InboundMessage
	sub   session.SubscribeAck
	unsub session.UnsubscribeAck
}

// harness wires a Transport to fake clients and records its callbacks.
type harness struct {
	t         *Transport
	events    chan handlerEvent
	mu        sync.Mutex
	clients   []*fakeClient
	configure func(c *fakeClient)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{events: make(chan handlerEvent, 64)}
	h.t = NewTransport(Options{ClientID: "test-client", DisconnectQuiesce: 5})
	h.t.newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{opts: opts, open: true}
		if h.configure != nil {
			h.configure(c)
		}
		h.mu.Lock()
		h.clients = append(h.clients, c)
		h.mu.Unlock()
		return c
	}
	h.t.SetHandlers(session.Handlers{
		OnConnect: func(code session.ReturnCode, err error) {
			h.events <- handlerEvent{kind: "connect", code: code, err: err}
		},
		OnDisconnect: func(code session.ReturnCode, err error) {
			h.events <- handlerEvent{kind: "disconnect", code: code, err: err}
		},
		OnMessage: func(msg session.InboundMessage) {
			h.events <- handlerEvent{kind: "message", msg: msg}
		},
		OnSubscribe: func(ack session.SubscribeAck) {
			h.events <- handlerEvent{kind: "subscribe", sub: ack}
		},
		OnUnsubscribe: func(ack session.UnsubscribeAck) {
			h.events <- handlerEvent{kind: "unsubscribe", unsub: ack}
		},
		OnReconnecting: func() {
			h.events <- handlerEvent{kind: "reconnecting"}
		},
	})
	return h
}

func (h *harness) client(i int) *fakeClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[i]
}

func (h *harness) next(t *testing.T) handlerEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
		return handlerEvent{}
	}
}

func (h *harness) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected callback %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// connect runs Connect and acknowledges it through the client's OnConnect.
func (h *harness) connect(t *testing.T) *fakeClient {
	t.Helper()
	if err := h.t.Connect("localhost", 1883, 30*time.Second); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.mu.Lock()
	c := h.clients[len(h.clients)-1]
	h.mu.Unlock()
	c.opts.OnConnect(c)
	if ev := h.next(t); ev.kind != "connect" || ev.code != session.CodeAccepted || ev.err != nil {
		t.Fatalf("connect callback = %+v", ev)
	}
	return c
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	will := session.LastWill{Topic: "desk/status", Payload: "offline", QoS: 1, Retain: true}
	o := Options{ClientID: "desk-1", AutoReconnect: true, CleanSession: true}.withDefaults()

	opts := buildClientOptions(o, attempt{
		host:      "broker.local",
		port:      8883,
		keepAlive: 30 * time.Second,
		username:  "alice",
		password:  "secret",
		will:      &will,
	})

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:8883" {
		t.Errorf("Servers = %v, want [tcp://broker.local:8883]", opts.Servers)
	}
	if opts.ClientID != "desk-1" {
		t.Errorf("ClientID = %q, want desk-1", opts.ClientID)
	}
	if opts.Username != "alice" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want alice/secret", opts.Username, opts.Password)
	}
	if !opts.WillEnabled || opts.WillTopic != "desk/status" || string(opts.WillPayload) != "offline" {
		t.Errorf("will = %v %q %q", opts.WillEnabled, opts.WillTopic, opts.WillPayload)
	}
	if opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("will qos/retain = %d/%v, want 1/true", opts.WillQos, opts.WillRetained)
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if !opts.AutoReconnect || opts.ConnectRetry {
		t.Errorf("AutoReconnect/ConnectRetry = %v/%v, want true/false", opts.AutoReconnect, opts.ConnectRetry)
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
}

func TestBuildClientOptions_Anonymous(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"no credentials", "", ""},
		{"password only", "", "ignored"},
		{"username only", "alice", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := buildClientOptions(Options{}.withDefaults(), attempt{
				host:     "localhost",
				port:     1883,
				username: tt.username,
				password: tt.password,
			})

			if opts.Username != "" || opts.Password != "" {
				t.Errorf("credentials = %q/%q, want none", opts.Username, opts.Password)
			}
			if opts.WillEnabled {
				t.Error("WillEnabled = true without a will")
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 1883, "tcp://localhost:1883"},
		{"10.0.0.5", 8883, "tcp://10.0.0.5:8883"},
		{"::1", 1883, "tcp://[::1]:1883"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.host, tt.port); got != tt.want {
			t.Errorf("brokerURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestPingTimeout(t *testing.T) {
	tests := []struct {
		keepAlive time.Duration
		want      time.Duration
	}{
		{0, 10 * time.Second},
		{60 * time.Second, 10 * time.Second},
		{10 * time.Second, 5 * time.Second},
		{2 * time.Second, time.Second},
	}
	for _, tt := range tests {
		if got := pingTimeout(tt.keepAlive); got != tt.want {
			t.Errorf("pingTimeout(%v) = %v, want %v", tt.keepAlive, got, tt.want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	o := OptionsFromConfig(config.BrokerConfig{AutoReconnect: true, CleanSession: true})
	if !strings.HasPrefix(o.ClientID, "mqttdesk-") {
		t.Errorf("ClientID = %q, want mqttdesk- prefix", o.ClientID)
	}
	if other := OptionsFromConfig(config.BrokerConfig{}); other.ClientID == o.ClientID {
		t.Error("generated client IDs are not unique")
	}
	if !o.AutoReconnect || !o.CleanSession {
		t.Errorf("flags = %+v", o)
	}
	if o.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", o.ConnectTimeout, defaultConnectTimeout)
	}

	fixed := OptionsFromConfig(config.BrokerConfig{ClientID: "desk-7"})
	if fixed.ClientID != "desk-7" {
		t.Errorf("ClientID = %q, want desk-7", fixed.ClientID)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestTransport_ConnectUsesPendingSettings(t *testing.T) {
	h := newHarness(t)
	h.t.SetCredentials("bob", "pw")
	h.t.SetLastWill(session.LastWill{Topic: "w", Payload: "gone"})

	c := h.connect(t)

	if c.opts.Username != "bob" || c.opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", c.opts.Username, c.opts.Password)
	}
	if !c.opts.WillEnabled || c.opts.WillTopic != "w" {
		t.Errorf("will not applied: %v %q", c.opts.WillEnabled, c.opts.WillTopic)
	}

	h.t.ClearLastWill()
	c2 := h.connect(t)
	if c2.opts.WillEnabled {
		t.Error("cleared will still applied")
	}
}

func TestTransport_ConnectRefused(t *testing.T) {
	h := newHarness(t)
	h.configure = func(c *fakeClient) {
		c.connectToken = doneToken(errors.New("not Authorized"))
		c.connectToken.rc = 5
	}

	if err := h.t.Connect("localhost", 1883, 0); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := h.next(t)
	if ev.kind != "connect" || ev.code != session.CodeRefusedNotAuthorised {
		t.Fatalf("callback = %+v, want connect refused code 5", ev)
	}
	if !errors.Is(ev.err, ErrConnectionFailed) {
		t.Errorf("err = %v, want ErrConnectionFailed", ev.err)
	}
}

func TestTransport_ConnectNetworkError(t *testing.T) {
	h := newHarness(t)
	h.configure = func(c *fakeClient) {
		c.connectToken = doneToken(errors.New("dial tcp: connection refused"))
	}

	_ = h.t.Connect("localhost", 1, 0)

	ev := h.next(t)
	if ev.code != session.CodeNetworkError || ev.err == nil {
		t.Errorf("callback = %+v, want network error", ev)
	}
}

func TestTransport_StaleGenerationDropped(t *testing.T) {
	h := newHarness(t)
	first := h.connect(t)
	second := h.connect(t)

	first.opts.OnConnectionLost(first, errors.New("old socket closed"))
	first.opts.OnConnect(first)
	h.expectNone(t)

	second.opts.OnConnectionLost(second, errors.New("eof"))
	ev := h.next(t)
	if ev.kind != "disconnect" || ev.code != session.CodeNetworkError {
		t.Errorf("callback = %+v, want connection lost", ev)
	}

	deadline := time.Now().Add(time.Second)
	for first.IsConnectionOpen() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if first.IsConnectionOpen() {
		t.Error("superseded client was not disconnected")
	}
}

func TestTransport_Reconnecting(t *testing.T) {
	lost := errors.New("eof")

	tests := []struct {
		name     string
		fire     func(c *fakeClient)
		wantErr  error
		wantKind []string
	}{
		{
			name: "loss then reconnecting",
			fire: func(c *fakeClient) {
				c.opts.OnConnectionLost(c, lost)
				c.opts.OnReconnecting(c, c.opts)
			},
			wantErr:  lost,
			wantKind: []string{"disconnect", "reconnecting"},
		},
		{
			name: "reconnecting then late loss",
			fire: func(c *fakeClient) {
				c.opts.OnReconnecting(c, c.opts)
				c.opts.OnConnectionLost(c, lost)
			},
			wantErr:  ErrConnectionLost,
			wantKind: []string{"disconnect", "reconnecting"},
		},
		{
			name: "repeated reconnect attempts",
			fire: func(c *fakeClient) {
				c.opts.OnReconnecting(c, c.opts)
				c.opts.OnReconnecting(c, c.opts)
			},
			wantErr:  ErrConnectionLost,
			wantKind: []string{"disconnect", "reconnecting", "reconnecting"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c := h.connect(t)

			tt.fire(c)
			for i, kind := range tt.wantKind {
				ev := h.next(t)
				if ev.kind != kind {
					t.Fatalf("callback %d = %+v, want %s", i, ev, kind)
				}
				if kind == "disconnect" && (ev.code != session.CodeNetworkError || !errors.Is(ev.err, tt.wantErr)) {
					t.Errorf("disconnect = %+v, want network error %v", ev, tt.wantErr)
				}
			}
			h.expectNone(t)
		})
	}
}

func TestTransport_LossReportedAgainAfterReconnect(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	c.opts.OnReconnecting(c, c.opts)
	h.next(t)
	h.next(t)

	c.opts.OnConnect(c)
	if ev := h.next(t); ev.kind != "connect" {
		t.Fatalf("callback = %+v, want connect", ev)
	}

	c.opts.OnConnectionLost(c, errors.New("reset"))
	if ev := h.next(t); ev.kind != "disconnect" {
		t.Errorf("callback = %+v, want disconnect after a fresh loss", ev)
	}
}

func TestTransport_Disconnect(t *testing.T) {
	h := newHarness(t)

	if err := h.t.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Disconnect() before Connect error = %v, want ErrNotConnected", err)
	}

	c := h.connect(t)
	if err := h.t.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	ev := h.next(t)
	if ev.kind != "disconnect" || ev.code != session.CodeAccepted || ev.err != nil {
		t.Errorf("callback = %+v, want clean disconnect", ev)
	}
	c.mu.Lock()
	quiesce := append([]uint(nil), c.quiesce...)
	c.mu.Unlock()
	if len(quiesce) != 1 || quiesce[0] != 5 {
		t.Errorf("quiesce = %v, want [5]", quiesce)
	}
}

func TestTransport_LateConnackAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	if err := h.t.Connect("localhost", 1883, 0); err != nil {
		t.Fatal(err)
	}
	c := h.client(0)

	_ = h.t.Disconnect()
	if ev := h.next(t); ev.kind != "disconnect" {
		t.Fatalf("callback = %+v, want disconnect", ev)
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	c.opts.OnConnect(c)
	h.expectNone(t)

	deadline := time.Now().Add(time.Second)
	for c.IsConnectionOpen() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.IsConnectionOpen() {
		t.Error("late connection was not torn down")
	}
}

// =============================================================================
// Message Delivery Tests
// =============================================================================

func TestTransport_MessagesGatedByLoop(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)
	msg := fakeMessage{topic: "a/b", payload: []byte(`{"v":1}`), qos: 1}

	c.opts.DefaultPublishHandler(c, msg)
	h.expectNone(t)

	h.t.StartLoop()
	c.opts.DefaultPublishHandler(c, msg)
	ev := h.next(t)
	if ev.kind != "message" || ev.msg.Topic != "a/b" || string(ev.msg.Payload) != `{"v":1}` || ev.msg.QoS != 1 {
		t.Errorf("callback = %+v", ev)
	}

	h.t.StopLoop()
	c.opts.DefaultPublishHandler(c, msg)
	h.expectNone(t)
}

func TestTransport_HandlerPanicRecovered(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)
	h.t.SetHandlers(session.Handlers{
		OnMessage: func(session.InboundMessage) { panic("boom") },
	})
	h.t.StartLoop()

	c.opts.DefaultPublishHandler(c, fakeMessage{topic: "x"})
}

// =============================================================================
// Subscribe / Publish Tests
// =============================================================================

func TestTransport_SubscribeNotConnected(t *testing.T) {
	h := newHarness(t)
	if _, err := h.t.Subscribe("a", 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if _, err := h.t.Unsubscribe("a"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if err := h.t.Publish("a", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestTransport_SubscribeAck(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	id, err := h.t.Subscribe("sensors/#", 1)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if id == 0 {
		t.Error("Subscribe() returned id 0")
	}

	ev := h.next(t)
	if ev.kind != "subscribe" || ev.sub.MessageID != id || ev.sub.Topic != "sensors/#" || ev.sub.Granted != 1 || ev.sub.Err != nil {
		t.Errorf("ack = %+v, want granted 1 for id %d", ev.sub, id)
	}

	id2, _ := h.t.Subscribe("other", 0)
	if id2 == id {
		t.Error("request ids repeat")
	}
	h.next(t)
}

func TestTransport_SubscribeRefused(t *testing.T) {
	h := newHarness(t)
	h.configure = func(c *fakeClient) {
		c.subscribeToken = doneToken(nil)
		c.subscribeToken.result = map[string]byte{"private/#": subackFailure}
	}
	h.connect(t)

	if _, err := h.t.Subscribe("private/#", 0); err != nil {
		t.Fatal(err)
	}
	ev := h.next(t)
	if ev.sub.Granted != subackFailure || !errors.Is(ev.sub.Err, ErrSubscriptionRefused) {
		t.Errorf("ack = %+v, want refused", ev.sub)
	}
}

func TestTransport_SubscribeTokenError(t *testing.T) {
	h := newHarness(t)
	h.configure = func(c *fakeClient) {
		c.subscribeToken = doneToken(errors.New("connection lost before subscribe completed"))
	}
	h.connect(t)

	_, _ = h.t.Subscribe("a", 0)
	ev := h.next(t)
	if !errors.Is(ev.sub.Err, ErrSubscribeFailed) {
		t.Errorf("ack err = %v, want ErrSubscribeFailed", ev.sub.Err)
	}
}

func TestTransport_Unsubscribe(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	id, err := h.t.Unsubscribe("a/b")
	if err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	ev := h.next(t)
	if ev.kind != "unsubscribe" || ev.unsub.MessageID != id || ev.unsub.Topic != "a/b" {
		t.Errorf("ack = %+v", ev.unsub)
	}
	if log := c.callLog(); log[len(log)-1] != "unsubscribe a/b" {
		t.Errorf("calls = %v", log)
	}
}

func TestTransport_Publish(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	if err := h.t.Publish("cmd/light", []byte("on"), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	c.mu.Lock()
	published := append([]string(nil), c.published...)
	c.mu.Unlock()
	if len(published) != 1 || published[0] != "cmd/light=on" {
		t.Errorf("published = %v", published)
	}
}
