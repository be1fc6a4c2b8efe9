package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/auth"
	"github.com/Clark-Hu/cinerate/internal/catalog"
	"github.com/Clark-Hu/cinerate/internal/config"
	"github.com/Clark-Hu/cinerate/internal/ledger"
	"github.com/Clark-Hu/cinerate/internal/metrics"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

// HealthChecker reports database reachability; *store.Store satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Health   HealthChecker
	Repo     *repository.Repository
	Auth     *auth.Service
	Ledger   *ledger.Ledger
	Catalog  *catalog.Service
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	health  HealthChecker
	repo    *repository.Repository
	auth    *auth.Service
	ledger  *ledger.Ledger
	catalog *catalog.Service
	metrics *metrics.Metrics
	gather  prometheus.Gatherer
	logger  *zap.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gather := deps.Gatherer
	if gather == nil {
		gather = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger, deps.Metrics))
	r.Use(recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{
		cfg:     cfg,
		health:  deps.Health,
		repo:    deps.Repo,
		auth:    deps.Auth,
		ledger:  deps.Ledger,
		catalog: deps.Catalog,
		metrics: deps.Metrics,
		gather:  gather,
		logger:  logger,
		router:  r,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))

	s.router.Route("/auth", func(r chi.Router) {
		if s.cfg.AuthRateLimitPerMin > 0 {
			r.Use(httprate.Limit(
				s.cfg.AuthRateLimitPerMin,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(s.handleRateLimited),
			))
		}
		r.Post("/register", s.handleRegister)
		r.Post("/token", s.handleToken)
		r.Post("/token/refresh", s.handleRefresh)
		r.With(auth.RequireUser(s.auth.Tokens())).Post("/logout", s.handleLogout)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(s.auth.Tokens()))

		r.Get("/users", s.handleListUsers)
		r.Get("/me/rated-movies", s.handleRatedMovies)
		r.Post("/import", s.handleImport)
		r.Get("/admin/movies", s.handleAdminSearch)
		r.Post("/admin/movies", s.handleAdminAdd)

		r.Route("/movies", func(r chi.Router) {
			r.Get("/", s.handleListMovies)
			r.Post("/", s.handleCreateMovie)
			r.Get("/watched", s.handleWatchHistory)
			r.Post("/watched", s.handleRecordWatch)

			r.Route("/{tmdbID}", func(r chi.Router) {
				r.Get("/", s.handleGetMovie)
				r.Put("/", s.handleReplaceMovie)
				r.Patch("/", s.handlePatchMovie)
				r.Delete("/", s.handleDeleteMovie)

				r.Get("/ratings", s.handleListRatings)
				r.Post("/ratings", s.handleSubmitRating)
				r.Get("/ratings/mine", s.handleMyRating)
				r.Get("/ratings/{ratingID}", s.handleGetRating)
				r.Put("/ratings/{ratingID}", s.handleUpdateRating)
				r.Patch("/ratings/{ratingID}", s.handleUpdateRating)
				r.Delete("/ratings/{ratingID}", s.handleDeleteRating)

				r.Get("/reviews", s.handleListReviews)
				r.Post("/reviews", s.handleCreateReview)
				r.Get("/reviews/{reviewID}", s.handleGetReview)
				r.Put("/reviews/{reviewID}", s.handleUpdateReview)
				r.Delete("/reviews/{reviewID}", s.handleDeleteReview)
				r.Post("/reviews/{reviewID}/like", s.handleLike)
				r.Delete("/reviews/{reviewID}/like", s.handleUnlike)
				r.Delete("/reviews/{reviewID}/unlike", s.handleUnlike)
			})
		})
	})
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health == nil {
		s.respondError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "database not configured", nil)
		return
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.respondError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil)
}
