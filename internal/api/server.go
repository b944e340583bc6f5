package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mqttdesk/internal/audit"
	"github.com/nerrad567/mqttdesk/internal/events"
	"github.com/nerrad567/mqttdesk/internal/infrastructure/config"
	"github.com/nerrad567/mqttdesk/internal/infrastructure/logging"
	"github.com/nerrad567/mqttdesk/internal/messagelog"
	"github.com/nerrad567/mqttdesk/internal/profile"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionService is the part of the session manager the API drives.
// *session.Manager satisfies it.
type SessionService interface {
	Connect(p session.ConnectParams) error
	Disconnect()
	SetLastWill(topic, payload string, qos int, retain bool) (deferred bool, err error)
	ClearLastWill() (deferred bool)
	Subscribe(topic string, qos int) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos int, retain bool) error
	ClearMessages()
	Snapshot() session.Snapshot
	Messages() []messagelog.Record
	MessageCount() int
}

// EventSource hands out event subscriptions. *events.Bridge satisfies it.
type EventSource interface {
	Subscribe() *events.Subscription
	SubscriberCount() int
}

// HealthChecker is an optional dependency probed by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Session  SessionService
	Events   EventSource
	Profiles profile.Repository // optional: profile routes answer 503 without it
	Audit    audit.Repository   // optional: GET /audit answers 503 without it
	DB       HealthChecker      // optional
	Influx   HealthChecker      // optional
	ClientID string
	Version  string
}

// Server is the HTTP API server for MQTT Desk.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	session   SessionService
	events    EventSource
	profiles  profile.Repository
	audit     audit.Repository
	db        HealthChecker
	influx    HealthChecker
	clientID  string
	version   string
	startTime time.Time

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, session, events)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event source is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.Component("api"),
		session:   deps.Session,
		events:    deps.Events,
		profiles:  deps.Profiles,
		audit:     deps.Audit,
		db:        deps.DB,
		influx:    deps.Influx,
		clientID:  deps.ClientID,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}
	s.hub = NewHub(deps.WS, deps.Events, s.logger)

	return s, nil
}

// Handler returns the routed handler without starting a listener.
// Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, then launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Bind synchronously so a port clash is reported to the caller.
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server listening", "address", ln.Addr().String(), "auth", s.authEnabled())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
