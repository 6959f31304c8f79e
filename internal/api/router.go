package api

import (
	"crypto/ed25519"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/api/middleware"
	"github.com/eldtechnologies/donut/internal/handlers"
	"github.com/eldtechnologies/donut/internal/rounds"
	"github.com/eldtechnologies/donut/internal/store"
)

// Options wires the router's dependencies. Redis and OperatorKey are optional.
type Options struct {
	Logger        zerolog.Logger
	Store         store.DataStore
	Redis         *store.RedisStore
	Rounds        *rounds.Service
	SigningSecret string
	OperatorKey   ed25519.PublicKey
	RateLimit     middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	logger := opts.Logger
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // Slack interaction payloads carry the whole message
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	var redisPinger handlers.Pinger
	var nonces middleware.NonceClaimer
	var limiter *middleware.RateLimiter
	if opts.Redis != nil {
		limiter = middleware.NewRateLimiter(opts.Redis.Client(), logger, opts.RateLimit)
		r.Use(limiter.Middleware)
		redisPinger = opts.Redis
		nonces = opts.Redis
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.HeaderNonce, middleware.HeaderTimestamp, middleware.HeaderSignature},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Store, redisPinger, opts.Rounds, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	// Slack callbacks carry their own signature
	if opts.SigningSecret != "" {
		r.With(middleware.SlackSignature(opts.SigningSecret, logger)).
			Post("/slack/interactions", h.SlackInteraction)
	} else {
		logger.Warn().Msg("SLACK_SIGNING_SECRET not set, /slack/interactions is disabled")
	}

	// Operator routes (require signature when a key is configured)
	r.Group(func(r chi.Router) {
		if opts.OperatorKey != nil {
			auth := middleware.NewOperatorAuth(opts.OperatorKey, nonces, logger)
			r.Use(auth.RequireOperator)
		} else {
			logger.Warn().Msg("OPERATOR_PUBLIC_KEY not set, operator routes are unauthenticated")
		}
		if limiter != nil {
			r.Use(limiter.Operator)
		}

		r.Post("/rounds/start", h.StartRound)
		r.Post("/rounds/remind", h.SendReminders)
		r.Post("/rounds/summary", h.PostSummary)
		r.Get("/rounds/latest/summary", h.LatestSummary)

		r.Get("/admin/config", h.GetConfig)
		r.Put("/admin/config/channel", h.UpdateChannel)
		r.Put("/admin/config/interval", h.UpdateInterval)
		r.Post("/admin/avoid", h.AddAvoid)
	})

	return r
}
