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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lakshan9910/studio-sub000/internal/cache"
	"github.com/lakshan9910/studio-sub000/internal/config"
	"github.com/lakshan9910/studio-sub000/internal/httpapi"
	"github.com/lakshan9910/studio-sub000/internal/obs"
	"github.com/lakshan9910/studio-sub000/internal/service"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/store/memory"
	pgstore "github.com/lakshan9910/studio-sub000/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers := openRepository(ctx, cfg, logger)
	reportCache, cacheCloser := openReportCache(ctx, cfg, logger)
	if cacheCloser != nil {
		closers = append(closers, cacheCloser)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, cfg.ManagerPIN, repo)
	svc := service.New(repo, service.Options{
		Cache:            reportCache,
		CacheTTL:         cfg.ReportCacheTTL,
		Metrics:          obs.NewDomainMetrics(cfg.MetricsNamespace, registry),
		Logger:           logger,
		VerifyManagerPIN: auth.ValidateManagerPIN,
	})
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
		Metrics:        obs.NewHTTPMetrics(cfg.MetricsNamespace, registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Str("env", cfg.AppEnv).Msg("pos backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}
	logger.Info().Msg("server stopped")
}

type repository interface {
	store.Repository
	httpapi.UserStore
}

func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (repository, []func() error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			logger.Fatal().Msg("DATABASE_URL is required in production")
		}
		logger.Info().Str("repository", "memory").Msg("using seeded in-memory repository")
		return memory.NewSeeded(), nil
	}

	if cfg.DBAutoMigrate {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("database migration failed")
		}
		logger.Info().Msg("database migrations applied")
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback")
	}
	logger.Info().Str("repository", "postgres").Msg("connected")
	return pg, []func() error{pg.Close}
}

func openReportCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) (cache.ReportCache, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info().Str("cache", "noop").Msg("report cache disabled")
		return cache.NoopReportCache{}, nil
	}
	redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using noop report cache")
		_ = redisCache.Close()
		return cache.NoopReportCache{}, nil
	}
	logger.Info().Str("cache", "redis").Msg("report cache enabled")
	return redisCache, redisCache.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return errors.New("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return errors.New("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated-digit, sequential and commonly used PINs.
func validatePINStrength(pin string) error {
	common := map[string]bool{
		"121212": true, "112233": true, "123123": true, "696969": true,
		"159753": true, "101010": true, "123321": true,
	}
	if common[pin] {
		return errors.New("common PIN not allowed")
	}

	repeated := true
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			repeated = false
		}
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	switch {
	case repeated:
		return errors.New("repeated-digit PIN not allowed")
	case ascending || descending:
		return errors.New("sequential PIN not allowed")
	}
	return nil
}
