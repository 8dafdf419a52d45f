package domain

import (
	"math"
	"time"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status          HealthStatus `json:"status"`
	LatencyMS       *int64       `json:"latency_ms,omitempty"`
	Error           string       `json:"error,omitempty"`
	SupportedModels []string     `json:"supported_models,omitempty"`
	LastSuccess     *time.Time   `json:"last_success,omitempty"`
}

func Healthy(latency time.Duration) ComponentHealth {
	ms := latency.Milliseconds()
	return ComponentHealth{Status: StatusHealthy, LatencyMS: &ms}
}

func Unhealthy(err error) ComponentHealth {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ComponentHealth{Status: StatusUnhealthy, Error: msg}
}

// Overall summarizes component statuses: healthy when none is unhealthy,
// unhealthy when all are, degraded otherwise.
func Overall(components map[string]ComponentHealth) HealthStatus {
	unhealthy := 0
	for _, c := range components {
		if c.Status == StatusUnhealthy {
			unhealthy++
		}
	}
	switch {
	case unhealthy == 0:
		return StatusHealthy
	case unhealthy < len(components):
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

type TokenStatus struct {
	Valid         bool       `json:"valid"`
	Status        string     `json:"status,omitempty"`
	Error         string     `json:"error,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DaysRemaining *int       `json:"days_remaining,omitempty"`
}

func InvalidToken(reason string) TokenStatus {
	return TokenStatus{Valid: false, Error: reason}
}

// TokenFromExpiry derives validity and the whole-day countdown from an expiry instant.
func TokenFromExpiry(expiresAt, now time.Time) TokenStatus {
	exp := expiresAt.UTC()
	if !now.Before(exp) {
		return TokenStatus{Valid: false, Error: "token expired", ExpiresAt: &exp}
	}
	days := int(math.Floor(exp.Sub(now).Hours() / 24))
	return TokenStatus{Valid: true, Status: "active", ExpiresAt: &exp, DaysRemaining: &days}
}
