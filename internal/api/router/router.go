package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matheuspdias/managerclin/internal/audit"
	"github.com/matheuspdias/managerclin/internal/availability"
	"github.com/matheuspdias/managerclin/internal/credits"
	"github.com/matheuspdias/managerclin/internal/dashboard"
	httpmiddleware "github.com/matheuspdias/managerclin/internal/http/middleware"
	"github.com/matheuspdias/managerclin/internal/idempotency"
	"github.com/matheuspdias/managerclin/internal/scheduling"
	"github.com/matheuspdias/managerclin/internal/telemedicine"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	HealthChecks       map[string]Pinger

	// AdminAuthSecret enables /admin; ActorAuthSecret switches clinic routes
	// from the X-Actor-Id header to bearer tokens.
	AdminAuthSecret string
	ActorAuthSecret string

	RateLimitPerSecond float64
	RateLimitBurst     int

	IdempotencyStore idempotency.Store
	IdempotencyTTL   time.Duration

	AvailabilityHandler *availability.Handler
	SchedulingHandler   *scheduling.Handler
	TelemedicineHandler *telemedicine.Handler
	CreditsHandler      *credits.Handler
	DashboardHandler    *dashboard.Handler
	AuditHandler        *audit.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.CreditsHandler != nil {
				cfg.CreditsHandler.RegisterAdminRoutes(admin)
			}
			if cfg.DashboardHandler != nil {
				cfg.DashboardHandler.RegisterAdminRoutes(admin)
			}
			if cfg.AuditHandler != nil {
				cfg.AuditHandler.RegisterAdminRoutes(admin)
			}
		})
	}

	// Tenant-scoped API routes
	r.Group(func(tenant chi.Router) {
		tenant.Use(requireOrgID)
		tenant.Use(httpmiddleware.ActorAuth(cfg.ActorAuthSecret))
		if cfg.RateLimitPerSecond > 0 {
			tenant.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}

		if cfg.AvailabilityHandler != nil {
			cfg.AvailabilityHandler.RegisterRoutes(tenant)
		}
		if cfg.SchedulingHandler != nil {
			if cfg.IdempotencyStore != nil {
				cfg.SchedulingHandler.WithCreateMiddleware(
					idempotency.Middleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger))
			}
			cfg.SchedulingHandler.RegisterRoutes(tenant)
		}
		if cfg.TelemedicineHandler != nil {
			cfg.TelemedicineHandler.RegisterRoutes(tenant)
		}
		if cfg.CreditsHandler != nil {
			cfg.CreditsHandler.RegisterRoutes(tenant)
		}
	})

	return r
}
