package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmcore/internal/authz"
	"dmcore/internal/config"
	"dmcore/internal/events"
	"dmcore/internal/observability/logging"
	"dmcore/internal/observability/metrics"
	"dmcore/internal/service"
	"dmcore/internal/store"
	httptransport "dmcore/internal/transport/http"
)

const serviceName = "dm"

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	metrics.MustRegister(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(store.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	st := store.New(db)
	if err := st.AutoMigrate(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	bus, closeBus, err := newBus(ctx, cfg)
	if err != nil {
		logger.Error("event bus init failed", "error", err)
		os.Exit(1)
	}
	defer closeBus()

	validator, closeAuth, err := newValidator(cfg)
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(1)
	}
	defer closeAuth()

	svc := service.New(st,
		service.WithBus(bus),
		service.WithPageSizes(cfg.PageSize, cfg.PageSizeMax),
	)
	handler := httptransport.NewRouter(svc, httptransport.Options{
		Auth:          validator,
		CORSOrigins:   cfg.CORSOrigins,
		RatePerMinute: cfg.RatePerMinute,
		PingInterval:  cfg.WSPingInterval,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dm service listening", "addr", cfg.Addr, "auth", validator.Method())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}

func newBus(ctx context.Context, cfg config.Config) (events.Bus, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("events: using in-process hub")
		return events.NewHub(), func() {}, nil
	}
	rb, err := events.NewRedisBusFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("events: using redis pub/sub")
	return rb, func() {
		if err := rb.Close(); err != nil {
			slog.Warn("events: redis close failed", "error", err)
		}
	}, nil
}

func newValidator(cfg config.Config) (authz.Validator, func(), error) {
	switch cfg.AuthMode {
	case config.AuthJWKS:
		jv, err := authz.NewJWKSValidator(cfg.JWKSURL, cfg.Issuer)
		if err != nil {
			return nil, nil, err
		}
		return jv, jv.Close, nil
	case config.AuthHeader:
		slog.Warn("auth: trusting identity header, run behind an authenticating gateway only", "header", cfg.UserHeader)
		return authz.NewHeaderValidator(cfg.UserHeader), func() {}, nil
	default:
		return authz.NewHMACValidator(cfg.HS256Secret, cfg.Issuer), func() {}, nil
	}
}
