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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"llmhub/internal/api"
	"llmhub/internal/config"
	"llmhub/internal/crypto"
	"llmhub/internal/health"
	"llmhub/internal/logging"
	"llmhub/internal/metrics"
	"llmhub/internal/monitor"
	"llmhub/internal/providers/registry"
	"llmhub/internal/ratelimit"
	"llmhub/internal/service"
	"llmhub/internal/session"
	"llmhub/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logging.Setup(cfg.Log.Level, os.Stdout, cfg.Claude.OAuthToken)
	log.Info().
		Str("version", cfg.Version).
		Str("session_store", cfg.Session.Store).
		Bool("debug", cfg.Debug).
		Msg("starting llm hub")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sealer *crypto.Sealer
	if cfg.Crypto.Enabled() {
		sealer, err = crypto.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize sealer")
		}
		log.Info().Str("key_id", sealer.CurrentKeyID()).Msg("at-rest encryption enabled")
	}

	var rdb *redis.Client
	if cfg.Session.Store == config.StoreRedis || cfg.Rate.PerHour > 0 {
		rdb, err = openRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	store, sweeper, err := openStore(ctx, cfg, rdb, session.NewCodec(sealer), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}
	defer store.Close()
	log.Info().Str("store", store.Name()).Msg("session store ready")

	specs, err := config.LoadProviderSpecs(cfg.Provider.File)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load providers file")
	}
	reg, err := registry.Load(registry.LoadOptions{Config: cfg, Specs: specs, Sealer: sealer, Logger: log.Logger})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load providers")
	}
	if reg.Len() == 0 {
		log.Warn().Msg("no providers enabled; chat requests will fail")
	}

	m := metrics.Global()
	sessions := service.NewSessionService(service.SessionConfig{
		Store:      store,
		Providers:  reg,
		DefaultTTL: cfg.Session.TTL,
		Logger:     log.Logger,
		Metrics:    m,
	})
	chat := service.NewChatService(service.ChatConfig{
		Sessions:        sessions,
		DefaultProvider: cfg.Provider.Default,
		Timeout:         cfg.Provider.Timeout,
		Logger:          log.Logger,
		Metrics:         m,
	})
	memory := service.NewMemoryService(service.MemoryConfig{
		Sessions: sessions,
		Timeout:  cfg.Provider.Timeout,
		Logger:   log.Logger,
	})
	reporter := health.NewReporter(health.Config{
		Version:     cfg.Version,
		Store:       store,
		Providers:   reg,
		Concurrency: cfg.Monitor.Concurrency,
		MaxAge:      cfg.Monitor.Interval,
		Metrics:     m,
		Logger:      log.Logger,
	})

	var limiter *ratelimit.Limiter
	if rdb != nil && cfg.Rate.PerHour > 0 {
		limiter = ratelimit.New(rdb, cfg.Rate.PerHour)
		log.Info().Int64("per_hour", cfg.Rate.PerHour).Msg("chat rate limit enabled")
	}

	srv := api.NewServer(api.Config{
		AppName:  cfg.AppName,
		Version:  cfg.Version,
		Sessions: sessions,
		Chat:     chat,
		Memory:   memory,
		Health:   reporter,
		Limiter:  limiter,
		Logger:   log.Logger,
		Metrics:  m,
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.HTTP.MetricsPath, promhttp.Handler())
	mux.Handle("/", srv.Handler())
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	mon := monitor.New(monitor.Config{
		Reporter: reporter,
		Sweeper:  sweeper,
		Interval: cfg.Monitor.Interval,
		Logger:   log.Logger,
		Metrics:  m,
	})
	go func() {
		if err := mon.Start(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("monitor: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}
	log.Info().Msg("stopped")
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// openStore builds the configured session store. An unreachable redis falls
// back to the in-process store so the hub still serves.
func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, codec session.Codec, logger zerolog.Logger) (session.Store, session.Sweeper, error) {
	switch cfg.Session.Store {
	case config.StoreRedis:
		if rdb != nil {
			return session.NewRedisStore(rdb, cfg.Session.TTL, codec, logger), nil, nil
		}
		logger.Warn().Msg("falling back to in-memory session store")
		mem := session.NewMemoryStore(cfg.Session.TTL)
		return mem, mem, nil
	case config.StoreSQL:
		st, err := storage.Open(ctx, storage.Options{
			Driver:      cfg.DB.Driver,
			DSN:         cfg.DB.DSN,
			AutoMigrate: cfg.DB.AutoMigrate,
			TTL:         cfg.Session.TTL,
			Codec:       codec,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		mem := session.NewMemoryStore(cfg.Session.TTL)
		return mem, mem, nil
	}
}
