package server

import (
	"context"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/config"
	httphandler "github.com/windfall/speech_portal/internal/handler/http"
	"github.com/windfall/speech_portal/internal/metrics"
	"github.com/windfall/speech_portal/internal/middleware"
	"github.com/windfall/speech_portal/internal/ratelimit"
	"github.com/windfall/speech_portal/web"
)

// Handlers groups the route handlers mounted by the router.
type Handlers struct {
	Health   *httphandler.HealthHandler
	Speech   *httphandler.SpeechHandler
	Usage    *httphandler.UsageHandler
	APIKeys  *httphandler.APIKeyHandler
	Subtitle *httphandler.SubtitleHandler
	OpenAI   *httphandler.OpenAIHandler
}

// Guards are the access controls applied to protected routes.
type Guards struct {
	Auth           middleware.TokenVerifier
	Limiter        ratelimit.Limiter
	Policy         ratelimit.Policy
	TrustedProxies []netip.Prefix
}

// HTTPServer represents the HTTP server.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// NewRouter builds the route tree.
func NewRouter(cfg *config.Config, log zerolog.Logger, h Handlers, g Guards) http.Handler {
	r := chi.NewRouter()

	// Global middleware. Client addresses are resolved by the rate limiter
	// against TRUSTED_PROXIES, so chi's RealIP is not used.
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		ExposedHeaders:   []string{"X-Audio-URL", "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (public)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Get("/live", h.Health.Live)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	auth := middleware.APIKeyAuth(g.Auth, log)
	limit := middleware.RateLimit(g.Limiter, g.Policy, g.TrustedProxies, log)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.APIHealth)

		// Public read-only endpoints
		r.Get("/tts/voices", h.Speech.Voices)
		r.Get("/usage/summary", h.Usage.Summary)
		r.Get("/usage/overview", h.Usage.Overview)

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Post("/subtitles", h.Subtitle.Build)

			// API key management
			r.Get("/apikeys", h.APIKeys.List)
			r.Post("/apikeys", h.APIKeys.Create)
			r.Delete("/apikeys/{id}", h.APIKeys.Delete)

			// Vendor calls consume quota and are rate limited.
			r.Group(func(r chi.Router) {
				r.Use(limit)

				r.Post("/tts", h.Speech.Synthesize)
				r.Post("/tts/synthesize", h.Speech.Synthesize)
				r.Post("/stt/recognize", h.Speech.Recognize)
				r.Post("/pronunciation/assess", h.Speech.Assess)
			})
		})
	})

	// OpenAI-compatible surface
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.StaticBearer(cfg.OpenAITTSAPIKey))
		r.Use(limit)

		r.Post("/audio/speech", h.OpenAI.CreateSpeech)
	})

	// Browser UI
	r.Handle("/*", web.Handler())

	return r
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(cfg *config.Config, log zerolog.Logger, h Handlers, g Guards) *HTTPServer {
	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      NewRouter(cfg, log, h, g),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &HTTPServer{
		server: server,
		log:    log,
	}
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
