// Package monitor runs the background loops of the hub: periodic health and
// token probes, and the sweep of expired sessions.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/domain"
	"llmhub/internal/health"
	"llmhub/internal/metrics"
	"llmhub/internal/session"
)

type Monitor struct {
	reporter      *health.Reporter
	sweeper       session.Sweeper
	interval      time.Duration
	sweepInterval time.Duration
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Reporter *health.Reporter
	// Sweeper is nil for stores that expire entries themselves.
	Sweeper       session.Sweeper
	Interval      time.Duration
	SweepInterval time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Monitor{
		reporter:      cfg.Reporter,
		sweeper:       cfg.Sweeper,
		interval:      cfg.Interval,
		sweepInterval: cfg.SweepInterval,
		logger:        cfg.Logger.With().Str("component", "monitor").Logger(),
		metrics:       cfg.Metrics,
	}
}

// Start blocks until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	wg := sync.WaitGroup{}
	if m.reporter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.loop(ctx, m.interval, m.probe)
		}()
	}
	if m.sweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.loop(ctx, m.sweepInterval, m.sweep)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (m *Monitor) loop(ctx context.Context, every time.Duration, tick func(context.Context)) {
	tick(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	components, _ := m.reporter.Refresh(ctx)
	m.reporter.RefreshTokens(ctx)
	if overall := domain.Overall(components); overall != domain.StatusHealthy {
		unhealthy := []string{}
		for name, c := range components {
			if c.Status == domain.StatusUnhealthy {
				unhealthy = append(unhealthy, name)
			}
		}
		sort.Strings(unhealthy)
		m.logger.Warn().Str("status", string(overall)).Strs("unhealthy", unhealthy).Msg("components unhealthy")
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	n, err := m.sweeper.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Error().Err(err).Msg("failed to sweep expired sessions")
		return
	}
	if n > 0 {
		if m.metrics != nil {
			m.metrics.SessionsSwept.Add(float64(n))
		}
		m.logger.Info().Int("removed", n).Msg("expired sessions swept")
	}
}
