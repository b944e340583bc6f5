package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttdesk/internal/session"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// clientFactory creates a paho client. Tests replace it.
type clientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Transport implements session.Transport on top of paho.mqtt.golang.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Handlers are invoked from paho's goroutines or from token waiters.
type Transport struct {
	opts      Options
	newClient clientFactory

	mu       sync.Mutex
	handlers session.Handlers
	username string
	password string
	will     *session.LastWill

	// client is the paho client of the current attempt, gen its generation.
	client pahomqtt.Client
	gen    uint64

	// closedGen is the generation Disconnect was last called for.
	closedGen uint64

	// requestID correlates subscribe/unsubscribe requests with their acks.
	requestID uint16

	// delivering gates inbound messages between StartLoop and StopLoop.
	delivering atomic.Bool

	// lostGen is the generation whose connection loss has been reported and
	// not yet followed by a reconnect. paho runs the loss and reconnecting
	// callbacks on separate goroutines; lossMu orders them so the loss is
	// always reported first and only once.
	lossMu  sync.Mutex
	lostGen uint64

	logger   Logger
	loggerMu sync.RWMutex
}

var _ session.Transport = (*Transport)(nil)

// NewTransport creates a transport. No connection is made until Connect.
func NewTransport(opts Options) *Transport {
	return &Transport{
		opts:      opts.withDefaults(),
		newClient: pahomqtt.NewClient,
	}
}

// ClientID returns the client identifier sent to the broker.
func (t *Transport) ClientID() string {
	return t.opts.ClientID
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in callbacks are silently ignored.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

func (t *Transport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

// SetHandlers registers the session callbacks.
func (t *Transport) SetHandlers(h session.Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

// SetCredentials sets the username and password for the next Connect.
func (t *Transport) SetCredentials(username, password string) {
	t.mu.Lock()
	t.username = username
	t.password = password
	t.mu.Unlock()
}

// SetLastWill sets the will message for the next Connect.
func (t *Transport) SetLastWill(will session.LastWill) {
	t.mu.Lock()
	t.will = &will
	t.mu.Unlock()
}

// ClearLastWill removes any will for the next Connect.
func (t *Transport) ClearLastWill() {
	t.mu.Lock()
	t.will = nil
	t.mu.Unlock()
}

// Connect starts a new connection attempt and returns immediately.
//
// The previous client, if any, is abandoned: its callbacks are dropped and
// it is disconnected in the background. A successful CONNACK arrives through
// OnConnect(CodeAccepted, nil); a refusal or dial failure through OnConnect
// with the broker's return code (or CodeNetworkError) and the cause.
//
// Parameters:
//   - host: Broker host name or address
//   - port: Broker TCP port
//   - keepAlive: Keepalive interval; zero disables pings
//
// Returns:
//   - error: Always nil; failures are reported asynchronously
func (t *Transport) Connect(host string, port int, keepAlive time.Duration) error {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	a := attempt{
		host:      host,
		port:      port,
		keepAlive: keepAlive,
		username:  t.username,
		password:  t.password,
		will:      t.will,
	}
	opts := buildClientOptions(t.opts, a)
	t.bindCallbacks(opts, gen)

	previous := t.client
	client := t.newClient(opts)
	t.client = client
	t.mu.Unlock()

	if previous != nil {
		go previous.Disconnect(0)
	}

	if logger := t.getLogger(); logger != nil {
		logger.Debug("dialling broker", "attempt", a.String(), "client_id", t.opts.ClientID)
	}

	token := client.Connect()
	go t.awaitConnect(gen, token)
	return nil
}

// bindCallbacks wires paho's callbacks for one generation.
func (t *Transport) bindCallbacks(opts *pahomqtt.ClientOptions, gen uint64) {
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		if t.abandoned(gen) {
			go c.Disconnect(0)
			return
		}
		t.lossMu.Lock()
		defer t.lossMu.Unlock()
		if t.lostGen == gen {
			t.lostGen = 0
		}
		t.dispatch(gen, func(h session.Handlers) {
			if h.OnConnect != nil {
				h.OnConnect(session.CodeAccepted, nil)
			}
		})
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.lossMu.Lock()
		defer t.lossMu.Unlock()
		t.reportLoss(gen, err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		t.lossMu.Lock()
		defer t.lossMu.Unlock()
		t.reportLoss(gen, ErrConnectionLost)
		t.dispatch(gen, func(h session.Handlers) {
			if h.OnReconnecting != nil {
				h.OnReconnecting()
			}
		})
	})

	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if !t.delivering.Load() {
			return
		}
		inbound := session.InboundMessage{
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			QoS:      msg.Qos(),
			Retained: msg.Retained(),
		}
		t.dispatch(gen, func(h session.Handlers) {
			if h.OnMessage != nil {
				h.OnMessage(inbound)
			}
		})
	})
}

// reportLoss dispatches OnDisconnect unless gen is stale or the loss of
// its connection was already reported. Caller holds t.lossMu.
func (t *Transport) reportLoss(gen uint64, err error) {
	t.mu.Lock()
	stale := gen != t.gen
	t.mu.Unlock()
	if stale || t.lostGen == gen {
		return
	}
	t.lostGen = gen
	t.dispatch(gen, func(h session.Handlers) {
		if h.OnDisconnect != nil {
			h.OnDisconnect(session.CodeNetworkError, err)
		}
	})
}

// awaitConnect reports a failed connect token. Success is reported by the
// OnConnect handler so reconnects are covered too.
func (t *Transport) awaitConnect(gen uint64, token pahomqtt.Token) {
	token.Wait()
	err := token.Error()
	if err == nil {
		return
	}

	code := session.CodeNetworkError
	if rc, ok := token.(interface{ ReturnCode() byte }); ok && rc.ReturnCode() != 0 {
		code = session.ReturnCode(rc.ReturnCode())
	}

	t.dispatch(gen, func(h session.Handlers) {
		if h.OnConnect != nil {
			h.OnConnect(code, fmt.Errorf("%w: %w", ErrConnectionFailed, err))
		}
	})
}

// StartLoop enables delivery of inbound messages.
func (t *Transport) StartLoop() {
	t.delivering.Store(true)
}

// StopLoop stops delivery of inbound messages.
func (t *Transport) StopLoop() {
	t.delivering.Store(false)
}

// Disconnect starts a graceful disconnect of the current client.
// Completion is reported through OnDisconnect(CodeAccepted, nil).
//
// Returns:
//   - error: ErrNotConnected if Connect was never called
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	client := t.client
	gen := t.gen
	t.closedGen = gen
	quiesce := t.opts.DisconnectQuiesce
	t.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}

	go func() {
		client.Disconnect(quiesce)
		t.dispatch(gen, func(h session.Handlers) {
			if h.OnDisconnect != nil {
				h.OnDisconnect(session.CodeAccepted, nil)
			}
		})
	}()
	return nil
}

// current returns the active client and its generation.
func (t *Transport) current() (pahomqtt.Client, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, t.gen
}

// abandoned reports whether gen was superseded or disconnected.
func (t *Transport) abandoned(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen != t.gen || gen == t.closedGen
}

// nextRequestID returns a non-zero correlation ID. Caller holds t.mu.
func (t *Transport) nextRequestID() uint16 {
	t.requestID++
	if t.requestID == 0 {
		t.requestID = 1
	}
	return t.requestID
}

// dispatch invokes fn with the handlers if gen is still current.
// Panics in handlers are recovered and logged.
func (t *Transport) dispatch(gen uint64, fn func(h session.Handlers)) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	h := t.handlers
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			if logger := t.getLogger(); logger != nil {
				logger.Error("MQTT callback panic recovered", "panic", r)
			}
		}
	}()
	fn(h)
}
