package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/academia-platform/aigov/internal/database"
	mw "github.com/academia-platform/aigov/internal/middleware"
	inats "github.com/academia-platform/aigov/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Governance handlers
	GetQuota      http.HandlerFunc
	ListAuditLogs http.HandlerFunc

	// Legacy per-kind usage counters
	GetLegacyUsage       http.HandlerFunc
	IncrementLegacyUsage http.HandlerFunc
	ResetLegacyUsage     http.HandlerFunc

	// Metered AI proxy handlers
	GeminiChat  http.HandlerFunc
	GroqChat    http.HandlerFunc
	DefaultChat http.HandlerFunc

	// Middleware
	AuthMiddleware      func(http.Handler) http.Handler
	AdmissionMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AIRateLimiter      func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// All routes require a valid access token
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			// Quota and audit introspection
			r.Route("/governance", func(r chi.Router) {
				r.Get("/quota", h.GetQuota)
				r.Get("/audit", h.ListAuditLogs)
			})

			// Legacy per-kind daily counters, kept for older clients
			r.Route("/ai-usage/{studentID}/{kind}", func(r chi.Router) {
				r.Get("/", h.GetLegacyUsage)
				r.Post("/increment", h.IncrementLegacyUsage)
				r.Post("/reset", h.ResetLegacyUsage)
			})

			// Metered AI routes: burst guard first, then quota admission
			r.Route("/ai", func(r chi.Router) {
				if cfg.AIRateLimiter != nil {
					r.Use(cfg.AIRateLimiter)
				}
				r.Use(h.AdmissionMiddleware)
				r.Post("/gemini/chat", h.GeminiChat)
				r.Post("/groq/chat", h.GroqChat)
				r.Post("/chat", h.DefaultChat)
			})
		})
	})

	return r
}
