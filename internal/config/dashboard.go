package config

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidPanelStore = errors.New("PANEL_STORE must be 'memory' or 'redis'")

type DashboardConfig struct {
	ListenAddr      string
	APIURL          string
	APITimeout      time.Duration
	RefreshInterval time.Duration
	PanelStore      string
	PanelTTL        time.Duration
	RedisURL        string
	Log             LogConfig
}

func LoadDashboard() (*DashboardConfig, error) {
	cfg := &DashboardConfig{
		ListenAddr:      mustEnv("DASHBOARD_LISTEN_ADDR", ":3000"),
		APIURL:          strings.TrimRight(mustEnv("HUB_API_URL", "http://localhost:8000"), "/"),
		APITimeout:      mustDuration("HUB_API_TIMEOUT", 150*time.Second),
		RefreshInterval: mustDuration("DASHBOARD_REFRESH", 30*time.Second),
		PanelStore:      strings.ToLower(mustEnv("PANEL_STORE", StoreMemory)),
		PanelTTL:        mustDuration("PANEL_TTL", 24*time.Hour),
		RedisURL:        secretOr(NewSecretChain(), "REDIS_URL", "redis://localhost:6379/0"),
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}
	if cfg.PanelStore != StoreMemory && cfg.PanelStore != StoreRedis {
		return nil, ErrInvalidPanelStore
	}
	return cfg, nil
}
