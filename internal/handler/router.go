package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/support-desk/internal/middleware"
	"github.com/capitalize-ai/support-desk/pkg/logger"
)

// RouterConfig carries the settings route wiring needs.
type RouterConfig struct {
	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Handlers groups the handlers mounted by NewRouter.
type Handlers struct {
	Health *HealthHandler
	Chat   *ChatHandler
	Agent  *AgentHandler
	WS     *WSHandler
}

// NewRouter mounts every route. Customer routes are public and rate limited per
// IP; agent routes require a JWT with the agent scope.
func NewRouter(cfg RouterConfig, h Handlers, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	agentOnly := func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeAgent))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Post("/chat", h.Chat.Chat)
			r.Get("/schema/events", h.Chat.EventSchemas)

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/status", h.Chat.Status)
				r.Get("/history", h.Chat.History)
				r.Get("/summary", h.Chat.Summary)
			})
		})

		r.Route("/agent", func(r chi.Router) {
			agentOnly(r)

			r.Get("/sessions", h.Agent.ListWaiting)
			r.Post("/sessions/{agentID}/take", h.Agent.Take)
			r.Post("/messages", h.Agent.SendMessage)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/session/{id}", h.WS.Customer)
		r.Group(func(r chi.Router) {
			agentOnly(r)
			r.Get("/agent/{agentID}", h.WS.Agent)
		})
	})

	return r
}
