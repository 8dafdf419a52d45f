// Package health probes the session store and the enabled providers and
// keeps the latest results for the health endpoints.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"llmhub/internal/domain"
	"llmhub/internal/metrics"
	"llmhub/internal/providers"
	"llmhub/internal/schema"
	"llmhub/internal/session"
)

type Reporter struct {
	version      string
	store        session.Store
	providers    *providers.Registry
	concurrency  int
	probeTimeout time.Duration
	maxAge       time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time

	mu          sync.RWMutex
	lastSuccess map[string]time.Time
	components  map[string]domain.ComponentHealth
	checkedAt   time.Time
	tokens      schema.TokenHealthResponse
	tokensAt    time.Time
}

type Config struct {
	Version   string
	Store     session.Store
	Providers *providers.Registry
	// Concurrency bounds simultaneous probes.
	Concurrency  int
	ProbeTimeout time.Duration
	// MaxAge is how long a snapshot is served before probing again. Zero
	// probes on every request.
	MaxAge  time.Duration
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

func NewReporter(cfg Config) *Reporter {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reporter{
		version:      cfg.Version,
		store:        cfg.Store,
		providers:    cfg.Providers,
		concurrency:  cfg.Concurrency,
		probeTimeout: cfg.ProbeTimeout,
		maxAge:       cfg.MaxAge,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "health").Logger(),
		now:          cfg.Now,
		lastSuccess:  map[string]time.Time{},
	}
}

// Basic reports liveness of the process itself.
func (r *Reporter) Basic() schema.HealthResponse {
	return schema.HealthResponse{Status: domain.StatusHealthy, Version: r.version, Timestamp: r.now().UTC()}
}

func (r *Reporter) Detailed(ctx context.Context) schema.DetailedHealthResponse {
	r.mu.RLock()
	fresh := r.components != nil && r.maxAge > 0 && r.now().Sub(r.checkedAt) < r.maxAge
	components, at := r.components, r.checkedAt
	r.mu.RUnlock()
	if !fresh {
		components, at = r.Refresh(ctx)
	}
	return schema.DetailedHealthResponse{
		Status:     domain.Overall(components),
		Version:    r.version,
		Timestamp:  at,
		Components: components,
	}
}

// Refresh probes the store and every provider concurrently and caches the result.
func (r *Reporter) Refresh(ctx context.Context) (map[string]domain.ComponentHealth, time.Time) {
	list := r.providers.List()
	names := make([]string, 0, len(list)+1)
	results := make([]domain.ComponentHealth, len(list)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	if r.store != nil {
		names = append(names, r.store.Name())
		g.Go(func() error {
			results[0] = r.probe(gctx, r.store.HealthCheck)
			return nil
		})
	} else {
		names = append(names, "")
	}
	for i, p := range list {
		names = append(names, p.Name())
		g.Go(func() error {
			h := r.probe(gctx, p.HealthCheck)
			if h.Status == domain.StatusHealthy && h.SupportedModels == nil {
				h.SupportedModels = p.SupportedModels()
			}
			results[i+1] = h
			return nil
		})
	}
	_ = g.Wait()

	now := r.now().UTC()
	components := make(map[string]domain.ComponentHealth, len(results))
	r.mu.Lock()
	for i, name := range names {
		if name == "" {
			continue
		}
		h := results[i]
		if h.Status == domain.StatusHealthy {
			r.lastSuccess[name] = now
		}
		if ts, ok := r.lastSuccess[name]; ok {
			h.LastSuccess = &ts
		}
		components[name] = h
		r.metrics.SetComponentHealthy(name, h.Status == domain.StatusHealthy)
	}
	r.components = components
	r.checkedAt = now
	r.mu.Unlock()

	r.logger.Debug().Int("components", len(components)).Str("overall", string(domain.Overall(components))).Msg("health refreshed")
	return components, now
}

func (r *Reporter) probe(ctx context.Context, check func(context.Context) domain.ComponentHealth) domain.ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	start := r.now()
	h := check(ctx)
	if h.Status == "" {
		h.Status = domain.StatusUnhealthy
		if h.Error == "" {
			h.Error = "no status reported"
		}
	}
	if h.Status == domain.StatusHealthy {
		h.Error = ""
	}
	if h.LatencyMS == nil {
		ms := r.now().Sub(start).Milliseconds()
		h.LatencyMS = &ms
	}
	return h
}

// Tokens reports token validity for every enabled provider. Providers that
// are known but disabled appear with a nil entry.
func (r *Reporter) Tokens(ctx context.Context) schema.TokenHealthResponse {
	r.mu.RLock()
	fresh := r.tokens != nil && r.maxAge > 0 && r.now().Sub(r.tokensAt) < r.maxAge
	cached := r.tokens
	r.mu.RUnlock()
	if fresh {
		return cached
	}
	return r.RefreshTokens(ctx)
}

func (r *Reporter) RefreshTokens(ctx context.Context) schema.TokenHealthResponse {
	list := r.providers.List()
	statuses := make([]domain.TokenStatus, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range list {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, r.probeTimeout)
			defer cancel()
			statuses[i] = p.TokenStatus(pctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(schema.TokenHealthResponse, len(list))
	for i, p := range list {
		st := statuses[i]
		if st.Error != "" {
			st.Valid = false
		}
		out[p.Name()] = &st
	}
	for _, d := range r.providers.Disabled() {
		out[d.Name] = nil
	}

	r.mu.Lock()
	r.tokens = out
	r.tokensAt = r.now()
	r.mu.Unlock()
	return out
}
