package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/internal/ratelimit"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// Handlers groups the endpoint handlers. Events is nil when the event
// journal is disabled.
type Handlers struct {
	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Personalities *PersonalityHandler
	Orchestration *OrchestrationHandler
	WS            *WSHandler
	Events        *EventHandler
}

// RouterConfig carries the middleware settings.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Sliding windows for the expensive endpoints.
	OrchestrateLimiter *ratelimit.SlidingWindow
	InsightsLimiter    *ratelimit.SlidingWindow
}

// NewRouter wires the handlers into a chi router.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Realtime feed, anonymous clients allowed
	r.With(middleware.OptionalAuth(cfg.JWTSecret)).Get("/ws", h.WS.Serve)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", h.Conversations.Create)
			r.Get("/", h.Conversations.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(middleware.RequireIDs("id"))

				r.Get("/", h.Conversations.Get)
				r.Post("/end", h.Conversations.End)

				// Messages
				r.Get("/messages", h.Messages.List)
				r.With(middleware.RequireIDs("msgID")).Put("/messages/{msgID}", h.Messages.Edit)
				r.Post("/responses", h.Messages.Respond)

				// Orchestration
				r.With(middleware.SlidingWindow(cfg.OrchestrateLimiter, "orchestrate")).
					Post("/orchestrate", h.Orchestration.Orchestrate)
				r.With(middleware.SlidingWindow(cfg.InsightsLimiter, "insights")).
					Post("/insights", h.Orchestration.Insights)

				if h.Events != nil {
					r.Get("/events", h.Events.Replay)
				}
			})
		})

		// Personalities
		r.Route("/personalities", func(r chi.Router) {
			r.Get("/", h.Personalities.List)
			r.Post("/", h.Personalities.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(middleware.RequireIDs("id"))

				r.Get("/", h.Personalities.Get)
				r.Put("/", h.Personalities.Update)
				r.Delete("/", h.Personalities.Delete)
			})
		})
	})

	return r
}
