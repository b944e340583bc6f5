package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency probe in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
				r.Put("/will", s.handleSetWill)
				r.Delete("/will", s.handleClearWill)
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", s.handleListSubscriptions)
				r.Post("/", s.handleSubscribe)
				r.Delete("/", s.handleUnsubscribe)
			})

			r.Post("/publish", s.handlePublish)

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", s.handleListMessages)
				r.Delete("/", s.handleClearMessages)
			})

			r.With(s.requireAudit).Get("/audit", s.handleListAudit)

			r.Route("/profiles", func(r chi.Router) {
				r.Use(s.requireProfiles)
				r.Get("/", s.handleListProfiles)
				r.Post("/", s.handleCreateProfile)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProfile)
					r.Put("/", s.handleUpdateProfile)
					r.Delete("/", s.handleDeleteProfile)
				})
			})
		})
	})

	return r
}

// handleHealth reports the server version, session phase and the state of
// optional dependencies. Any failing dependency yields 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	probe := func(name string, hc HealthChecker) {
		if hc == nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	probe("database", s.db)
	probe("influxdb", s.influx)

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"session": s.session.Snapshot().Status,
		"checks":  checks,
	})
}
