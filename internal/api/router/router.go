// Package router assembles the HTTP surface: the WhatsApp webhook, the
// customer-facing quote and appointment pages, and the operator endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/whatscrm/server/internal/http/handlers"
	httpmiddleware "github.com/whatscrm/server/internal/http/middleware"
	"github.com/whatscrm/server/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger       *logging.Logger
	Webhook      *handlers.WhatsAppWebhookHandler
	QuotePages   *handlers.QuotePageHandler
	Appointments *handlers.AppointmentHandler
	Ops          *handlers.OpsHandler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Operator endpoints are throttled; zero disables the limiter.
	OpsRequestsPerSecond float64
}

// New creates a new chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Ops != nil {
		r.Get("/", cfg.Ops.Root)
		r.Get("/health", cfg.Ops.Health)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Post("/webhook/whatsapp", cfg.Webhook.Handle)
	}

	if cfg.QuotePages != nil {
		r.Get("/quote/{quoteID}", cfg.QuotePages.Show)
		r.Get("/approve-quote/{quoteID}", cfg.QuotePages.Approve)
		r.Get("/reject-quote/{quoteID}", cfg.QuotePages.Reject)
		r.Post("/api/approve-quote", cfg.QuotePages.DecideAPI)
	}

	if cfg.Appointments != nil {
		r.Get("/appointment/{leadID}", cfg.Appointments.Show)
		r.Post("/confirm-appointment/{leadID}", cfg.Appointments.Confirm)
		r.Post("/api/mark-appointment-sent", cfg.Appointments.MarkSent)
	}

	if cfg.Ops != nil {
		r.Group(func(ops chi.Router) {
			if cfg.OpsRequestsPerSecond > 0 {
				ops.Use(httpmiddleware.RateLimit(cfg.OpsRequestsPerSecond, int(cfg.OpsRequestsPerSecond)*2+1))
			}
			ops.Post("/send-message", cfg.Ops.SendMessage)
			ops.Post("/send-quote", cfg.Ops.SendQuote)
			ops.Post("/cleanup-media", cfg.Ops.CleanupMedia)
		})
	}

	return r
}
