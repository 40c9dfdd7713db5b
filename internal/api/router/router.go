package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flossyai/dental-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/flossyai/dental-ai-platform/internal/http/middleware"
	"github.com/flossyai/dental-ai-platform/internal/voice"
	"github.com/flossyai/dental-ai-platform/internal/webchat"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	APIHandler         *handlers.Handler
	WebchatHandler     *webchat.Handler
	VoiceHandler       *voice.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	ClerkIssuer        string
	ClerkJWKSURL       string

	// EnableDebugRoutes mounts the user listing. Never set in production.
	EnableDebugRoutes bool
}

// New creates a new Chi router with all routes configured.
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

	clerkCfg := httpmiddleware.ClerkConfig{Issuer: cfg.ClerkIssuer, JWKSURL: cfg.ClerkJWKSURL}
	requireAuth := httpmiddleware.ClerkJWT(clerkCfg)
	optionalAuth := httpmiddleware.OptionalClerkJWT(clerkCfg)

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.APIHandler != nil {
			public.Get("/check_user_role", cfg.APIHandler.CheckUserRole)
			public.Post("/send", cfg.APIHandler.SendNotification)
		}
		if cfg.VoiceHandler != nil {
			public.Get("/ws/agent", cfg.VoiceHandler.ServeWS)
		}
		if cfg.WebchatHandler != nil {
			public.Get("/ws/chat", cfg.WebchatHandler.HandleWebSocket)
		}
	})

	// Chat accepts anonymous users; a valid token just links the booking.
	if cfg.WebchatHandler != nil {
		r.With(optionalAuth).Post("/ai_response", cfg.WebchatHandler.HandleAIResponse)
	}

	if cfg.APIHandler != nil {
		// The sign-in callback redirects to /login on auth problems rather
		// than answering 401, so it validates the token optionally.
		r.With(optionalAuth).Get("/redirect_user", cfg.APIHandler.RedirectUser)

		// Authenticated account and dashboard endpoints.
		r.Group(func(authed chi.Router) {
			authed.Use(requireAuth)
			authed.Get("/appointments/today", cfg.APIHandler.AppointmentsToday)
			authed.Post("/device_tokens", cfg.APIHandler.RegisterDevice)
		})

		if cfg.EnableDebugRoutes {
			r.Get("/debug_users", cfg.APIHandler.DebugUsers)
		}
	}

	return r
}
