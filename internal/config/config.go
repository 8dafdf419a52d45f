package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

var (
	ErrInvalidSessionStore = errors.New("SESSION_STORE must be 'memory', 'redis' or 'sql'")
	ErrMissingDatabaseDSN  = errors.New("DB_DSN is required when SESSION_STORE=sql")
	ErrInvalidSessionTTL   = errors.New("SESSION_TTL must be positive")
)

type Config struct {
	AppName string
	Version string
	Debug   bool

	HTTP     HTTPConfig
	Session  SessionConfig
	Redis    RedisConfig
	DB       DBConfig
	Claude   ClaudeConfig
	Gemini   GeminiConfig
	Provider ProviderConfig
	Rate     RateConfig
	Monitor  MonitorConfig
	Crypto   CryptoConfig
	Log      LogConfig
}

type HTTPConfig struct {
	ListenAddr        string
	MetricsPath       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type SessionConfig struct {
	Store string
	TTL   time.Duration
}

type RedisConfig struct {
	URL string
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type ClaudeConfig struct {
	Binary         string
	OAuthToken     string
	DefaultModel   string
	TokenExpiresAt *time.Time
}

type GeminiConfig struct {
	Binary       string
	AuthPath     string
	DefaultModel string
}

// ProviderConfig covers settings shared by every adapter.
type ProviderConfig struct {
	Default       string
	File          string
	Timeout       time.Duration
	ClientTimeout time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
}

type RateConfig struct {
	PerHour int64
}

type MonitorConfig struct {
	Interval    time.Duration
	Concurrency int
}

// CryptoConfig is empty when at-rest encryption is disabled.
type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

func (c CryptoConfig) Enabled() bool { return len(c.Keys) > 0 }

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	return LoadWith(NewSecretChain())
}

func LoadWith(secrets SecretProvider) (*Config, error) {
	cfg := &Config{
		AppName: mustEnv("APP_NAME", "LLM MCP Hub"),
		Version: mustEnv("APP_VERSION", "0.1.0"),
		Debug:   mustBool("DEBUG", false),
		HTTP: HTTPConfig{
			ListenAddr:        mustEnv("LISTEN_ADDR", ":8000"),
			MetricsPath:       mustEnv("METRICS_PATH", "/metrics"),
			ReadHeaderTimeout: mustDuration("READ_HEADER_TIMEOUT", 10*time.Second),
			ShutdownTimeout:   mustDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			Store: strings.ToLower(mustEnv("SESSION_STORE", StoreRedis)),
			TTL:   mustSeconds("SESSION_TTL", time.Hour),
		},
		Redis: RedisConfig{
			URL: secretOr(secrets, "REDIS_URL", "redis://localhost:6379/0"),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         secretOr(secrets, "DB_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Claude: ClaudeConfig{
			Binary:       mustEnv("CLAUDE_BINARY", "claude"),
			OAuthToken:   secretOr(secrets, "CLAUDE_CODE_OAUTH_TOKEN", ""),
			DefaultModel: mustEnv("CLAUDE_DEFAULT_MODEL", "claude-sonnet-4-5-20250929"),
		},
		Gemini: GeminiConfig{
			Binary:       mustEnv("GEMINI_BINARY", "gemini"),
			AuthPath:     secretOr(secrets, "GEMINI_AUTH_PATH", ""),
			DefaultModel: mustEnv("GEMINI_DEFAULT_MODEL", "gemini-2.5-pro"),
		},
		Provider: ProviderConfig{
			Default:       strings.ToLower(mustEnv("DEFAULT_PROVIDER", "")),
			File:          mustEnv("PROVIDERS_FILE", ""),
			Timeout:       mustSeconds("PROVIDER_TIMEOUT", 120*time.Second),
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 30*time.Second),
			MaxRetries:    mustInt("HTTP_MAX_RETRIES", 2),
			BackoffBase:   mustDuration("HTTP_BACKOFF_BASE", 400*time.Millisecond),
		},
		Rate: RateConfig{
			PerHour: mustInt64("RATE_LIMIT_PER_HOUR", 0),
		},
		Monitor: MonitorConfig{
			Interval:    mustDuration("MONITOR_INTERVAL", 30*time.Second),
			Concurrency: mustInt("MONITOR_CONCURRENCY", 4),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if raw := mustEnv("CLAUDE_TOKEN_EXPIRES_AT", ""); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse CLAUDE_TOKEN_EXPIRES_AT: %w", err)
		}
		ts = ts.UTC()
		cfg.Claude.TokenExpiresAt = &ts
	}

	switch cfg.Session.Store {
	case StoreMemory, StoreRedis:
	case StoreSQL:
		if cfg.DB.DSN == "" {
			return nil, ErrMissingDatabaseDSN
		}
	default:
		return nil, ErrInvalidSessionStore
	}
	if cfg.Session.TTL <= 0 {
		return nil, ErrInvalidSessionTTL
	}
	if cfg.Debug && cfg.Session.Store == StoreRedis {
		cfg.Session.Store = StoreMemory
	}

	cc, err := loadCryptoConfig()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc

	return cfg, nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "MASTER_KEY_B64" {
			continue
		}
		if !strings.HasPrefix(k, "MASTER_KEY_") || !strings.HasSuffix(k, "_B64") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "MASTER_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		for id := range keys {
			current = id
			break
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}
	return CryptoConfig{CurrentKeyID: current, Keys: keys}, nil
}

func secretOr(secrets SecretProvider, key, def string) string {
	if secrets != nil {
		if v, ok := secrets.Get(key); ok {
			return v
		}
	}
	return def
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// mustSeconds accepts either a bare number of seconds or a Go duration string.
func mustSeconds(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
