package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/channels"
	"github.com/shiftdeck/shiftdeck/pkg/config"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/messaging"
	"github.com/shiftdeck/shiftdeck/pkg/middleware"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
	"github.com/shiftdeck/shiftdeck/pkg/sso"
	"github.com/shiftdeck/shiftdeck/pkg/timeoff"
	"github.com/shiftdeck/shiftdeck/pkg/users"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
)

// unauthenticated paths skipped by the auth middleware
var skipAuthPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/api/v1/auth/sso/login",
	"/api/v1/auth/sso/callback",
}

// Server is the HTTP API server. It wires the domain services, the
// middleware chain (request ID, metrics, auth, rate limit) and the
// operational endpoints.
type Server struct {
	config  *config.Config
	log     *observability.Logger
	metrics *observability.Metrics
	router  *mux.Router
	http    *http.Server
}

// Dependencies are the external resources the server is built on.
// Redis and SSOProvider may be nil; AuditLogger defaults to a no-op.
type Dependencies struct {
	DB          *sql.DB
	Redis       *redis.Client
	AuditLogger audit.Logger
	SSOProvider sso.Provider
	Metrics     *observability.Metrics
}

// NewServer builds the server and its full route table
func NewServer(cfg *config.Config, log *observability.Logger, deps Dependencies) (*Server, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	auditLogger := deps.AuditLogger
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	s := &Server{
		config:  cfg,
		log:     log,
		metrics: metrics,
		router:  mux.NewRouter(),
	}

	// Domain services share one authorization and venue-scope layer.
	authzSvc := authz.NewService(authz.NewStore(deps.DB), authz.DefaultGrants(), auditLogger, s.metrics)
	venueSvc := venues.NewService(venues.NewStore(deps.DB), authzSvc, auditLogger)
	channelSvc := channels.NewService(channels.NewStore(deps.DB), venueSvc, authzSvc, auditLogger)
	messagingSvc := messaging.NewService(messaging.NewStore(deps.DB), venueSvc, auditLogger)
	tokens := identity.NewTokenManager(deps.DB)
	userSvc := users.NewService(users.NewStore(deps.DB), venueSvc, tokens, auditLogger)
	timeoffSvc := timeoff.NewService(timeoff.NewStore(deps.DB), venueSvc, authzSvc, auditLogger)

	// Middleware chain: request ID, metrics, auth, then rate limiting so
	// authenticated budgets are keyed by actor.
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID(log)))
	if cfg.Observability.MetricsEnabled {
		s.router.Use(s.metricsMiddleware)
	}
	auth := middleware.NewAuth(identity.NewResolver(deps.DB), log, skipAuthPaths...)
	s.router.Use(mux.MiddlewareFunc(auth.Handler))

	limiterConfig := middleware.RateLimitConfig{
		UserLimit:      cfg.RateLimit.UserLimit,
		AnonymousLimit: cfg.RateLimit.AnonymousLimit,
		MaxBuckets:     cfg.RateLimit.MaxBuckets,
	}
	if deps.Redis != nil {
		limiter := middleware.NewDistributedRateLimiter(deps.Redis, limiterConfig, log)
		s.router.Use(mux.MiddlewareFunc(limiter.Handler))
	} else {
		limiter, err := middleware.NewRateLimiter(limiterConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		s.router.Use(mux.MiddlewareFunc(limiter.Handler))
	}

	// Operational endpoints.
	health := observability.NewHealthCheck(deps.DB, deps.Redis)
	s.router.HandleFunc("/healthz", health.LivenessHandler).Methods("GET")
	s.router.HandleFunc("/readyz", health.ReadinessHandler).Methods("GET")
	if cfg.Observability.MetricsEnabled {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// Domain routes.
	authz.NewHandlers(authzSvc, log).RegisterRoutes(s.router)
	venues.NewHandlers(venueSvc).RegisterRoutes(s.router)
	channels.NewHandlers(channelSvc).RegisterRoutes(s.router)
	messaging.NewHandlers(messagingSvc).RegisterRoutes(s.router)
	users.NewHandlers(userSvc).RegisterRoutes(s.router)
	timeoff.NewHandlers(timeoffSvc).RegisterRoutes(s.router)

	if deps.SSOProvider != nil {
		provisioner := sso.NewProvisioner(deps.DB, users.NewStore(deps.DB), auditLogger, sso.Config{
			AutoProvision: cfg.SSO.AutoProvision,
			DefaultRole:   identity.Role(cfg.SSO.DefaultRole),
		})
		sso.NewHandlers(deps.SSOProvider, provisioner, tokens, cfg.Auth.TokenTTL, auditLogger).
			RegisterRoutes(s.router)
	}

	s.http = &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// metricsMiddleware labels requests with the mux route template so metric
// cardinality stays bounded
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		s.metrics.Middleware(route)(next).ServeHTTP(w, r)
	})
}

// Router returns the configured router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts serving and blocks until the listener fails or the
// server is shut down
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.http.Addr).Info("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
