package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cliqpat/voicereports/internal/http/handlers"
	httpmiddleware "github.com/cliqpat/voicereports/internal/http/middleware"
	"github.com/cliqpat/voicereports/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webhooks           *handlers.ConversationWebhookHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
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

	r.Get("/health", cfg.Webhooks.HealthCheck)

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/conversation", cfg.Webhooks.HandleConversation)
		r.Get("/report/{appointmentID}", cfg.Webhooks.HandleReport)
		r.Get("/test", cfg.Webhooks.HandleTest)
		r.Post("/test", cfg.Webhooks.HandleTest)
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
