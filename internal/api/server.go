// Package api serves the hub's HTTP/JSON interface.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/health"
	"llmhub/internal/metrics"
	"llmhub/internal/ratelimit"
	"llmhub/internal/service"
)

type Server struct {
	appName  string
	version  string
	sessions *service.SessionService
	chat     *service.ChatService
	memory   *service.MemoryService
	health   *health.Reporter
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Config struct {
	AppName  string
	Version  string
	Sessions *service.SessionService
	Chat     *service.ChatService
	Memory   *service.MemoryService
	Health   *health.Reporter
	// Limiter is optional; nil disables the hourly chat limit.
	Limiter *ratelimit.Limiter
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		appName:  cfg.AppName,
		version:  cfg.Version,
		sessions: cfg.Sessions,
		chat:     cfg.Chat,
		memory:   cfg.Memory,
		health:   cfg.Health,
		limiter:  cfg.Limiter,
		logger:   cfg.Logger.With().Str("component", "api").Logger(),
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
}

// Handler returns the routed API wrapped in recovery, logging and CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.root)
	mux.HandleFunc("GET /health", s.healthBasic)
	mux.HandleFunc("GET /health/detailed", s.healthDetailed)
	mux.HandleFunc("GET /health/tokens", s.healthTokens)

	mux.HandleFunc("GET /v1/providers", s.listProviders)
	mux.HandleFunc("GET /v1/providers/{name}", s.getProvider)
	mux.HandleFunc("GET /v1/providers/{name}/models", s.providerModels)

	mux.HandleFunc("GET /v1/sessions", s.listSessions)
	mux.HandleFunc("POST /v1/sessions", s.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/close", s.closeSession)
	mux.HandleFunc("GET /v1/sessions/{id}/memory", s.sessionMemory)

	mux.HandleFunc("POST /v1/chat/completions", s.chatCompletions)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path)
	})

	return s.recoverer(s.logRequests(cors(mux)))
}
