package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sitetrack.io/internal/auth"
	"sitetrack.io/internal/config"
	"sitetrack.io/internal/httpapi"
	"sitetrack.io/internal/obs"
	"sitetrack.io/internal/projects"
	"sitetrack.io/internal/store/pg"
	"sitetrack.io/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("SITETRACK_CONFIG"), "Path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	restore := obs.SetLogger(logger)
	defer restore()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
	logger.Info("stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("pg.dsn is required")
	}
	store, err := pg.Open(cfg.Postgres.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	verifier, err := auth.NewVerifier(auth.Config{Secret: cfg.Auth.Secret, Issuer: cfg.Auth.Issuer})
	if err != nil {
		return err
	}

	feed := stream.New()
	svc, err := projects.NewService(store, projects.WithPublisher(feed))
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.ReadyProbe{Store: store}, version, svc, verifier,
		httpapi.WithStream(feed),
		httpapi.WithRateLimit(cfg.Rate.PerSecond, cfg.Rate.Burst),
		httpapi.WithCORSOrigins(cfg.CORS.Origins...),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 15 * time.Second,
		// Zero keeps the map stream open.
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting sitetrack-api", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
