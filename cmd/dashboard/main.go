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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"llmhub/internal/client"
	"llmhub/internal/config"
	"llmhub/internal/dashboard"
	"llmhub/internal/logging"
)

func main() {
	cfg, err := config.LoadDashboard()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Log.Level, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub, err := client.New(cfg.APIURL, cfg.APITimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create hub client")
	}

	var panels dashboard.PanelStore = dashboard.NewMemoryPanelStore(cfg.PanelTTL)
	if cfg.PanelStore == config.StoreRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		panels = dashboard.NewRedisPanelStore(rdb, cfg.PanelTTL)
	}

	srv, err := dashboard.NewServer(dashboard.Config{
		API:     hub,
		Panels:  panels,
		Refresh: cfg.RefreshInterval,
		Logger:  log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dashboard")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("hub", hub.Server()).Msg("dashboard started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}
	log.Info().Msg("stopped")
}
