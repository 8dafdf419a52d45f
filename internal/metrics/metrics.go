package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "llm_hub"

type Metrics struct {
	ChatRequests    *prometheus.CounterVec
	ChatLatency     *prometheus.HistogramVec
	SessionsCreated prometheus.Counter
	SessionsDeleted prometheus.Counter
	SessionsSwept   prometheus.Counter
	ComponentHealth *prometheus.GaugeVec
	RateLimited     prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_requests_total",
				Help:      "Chat completions by provider and outcome code",
			}, []string{"provider", "outcome"}),
			ChatLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chat_duration_seconds",
				Help:      "Provider round-trip time for chat completions",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			}, []string{"provider"}),
			SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Sessions created explicitly or by a first chat call",
			}),
			SessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_deleted_total",
				Help:      "Sessions removed by an explicit delete",
			}),
			SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_swept_total",
				Help:      "Expired sessions removed by the background sweeper",
			}),
			ComponentHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_healthy",
				Help:      "1 when the component reported healthy on the last probe",
			}, []string{"component"}),
			RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Chat requests rejected by the hourly limit",
			}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served by method and status code",
			}, []string{"method", "code"}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.ChatLatency,
			global.SessionsCreated,
			global.SessionsDeleted,
			global.SessionsSwept,
			global.ComponentHealth,
			global.RateLimited,
			global.HTTPRequests,
		)
	})
	return global
}

// ObserveChat records one completion attempt. A nil receiver is a no-op.
func (m *Metrics) ObserveChat(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(provider, outcome).Inc()
	m.ChatLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) SetComponentHealthy(component string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.ComponentHealth.WithLabelValues(component).Set(v)
}
