package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/auth"
	"github.com/Clark-Hu/cinerate/internal/catalog"
	"github.com/Clark-Hu/cinerate/internal/config"
	httpserver "github.com/Clark-Hu/cinerate/internal/http"
	"github.com/Clark-Hu/cinerate/internal/ledger"
	"github.com/Clark-Hu/cinerate/internal/logging"
	"github.com/Clark-Hu/cinerate/internal/metrics"
	"github.com/Clark-Hu/cinerate/internal/repository"
	"github.com/Clark-Hu/cinerate/internal/store"
	"github.com/Clark-Hu/cinerate/internal/tmdb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cinerate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewPoolCollector(st.Stats),
	)
	m := metrics.New(reg)

	repo := repository.New(st)
	tokens := auth.Tokens{
		Secret:    []byte(cfg.JWTSecret),
		AccessTTL: time.Duration(cfg.AccessTokenTTLMins) * time.Minute,
	}
	authSvc := auth.NewService(repo, tokens, time.Duration(cfg.RefreshTokenTTLHours)*time.Hour, logger.Named("auth"))

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, err := authSvc.BootstrapSuperuser(dbCtx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap superuser: %w", err)
		}
	}

	var client tmdb.Client
	if cfg.TMDBEnabled() {
		c, err := tmdb.NewHTTPClient(tmdb.Options{
			BaseURL:      cfg.TMDBURL,
			APIKey:       cfg.TMDBAPIKey,
			ImageBaseURL: cfg.TMDBImageBaseURL,
			Timeout:      time.Duration(cfg.TMDBTimeoutSecs) * time.Second,
		}, logger.Named("tmdb"), m)
		if err != nil {
			return fmt.Errorf("init tmdb client: %w", err)
		}
		client = c
	} else {
		logger.Warn("TMDB_API_KEY not set; import and admin catalog endpoints are disabled")
	}

	server := httpserver.New(cfg, httpserver.Deps{
		Health:   st,
		Repo:     repo,
		Auth:     authSvc,
		Ledger:   ledger.New(st, repo, logger.Named("ledger"), m),
		Catalog:  catalog.New(st, repo, client, logger.Named("catalog"), m),
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger.Named("http"),
	})

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var runErr error
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("graceful shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return runErr
}
