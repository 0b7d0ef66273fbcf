// Package health tracks how reliably each payment provider answers.
//
// A decline is a healthy answer: the provider was reachable and made a
// decision. Only errors, timeouts, malformed responses and missing
// credentials lower a provider's score.
package health

import (
	"sync"
	"time"

	"github.com/marlonbarreto-git/warranty-checkout/internal/config"
	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// Status represents the health status of a provider.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusOpen     Status = "circuit_open"
)

// ProviderHealth contains the current health information for a provider.
type ProviderHealth struct {
	ProviderName  string    `json:"provider_name"`
	HealthScore   float64   `json:"health_score"`
	Status        Status    `json:"status"`
	TotalRecent   int       `json:"total_recent"`
	ApprovedCount int       `json:"approved_count"`
	DeclinedCount int       `json:"declined_count"`
	ErrorCount    int       `json:"error_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

type outcome struct {
	code      model.ResponseCode
	timestamp time.Time
}

func (o outcome) answered() bool {
	return o.code == model.Approved || o.code == model.Declined
}

// Monitor tracks provider health using a sliding window.
type Monitor struct {
	mu             sync.RWMutex
	windows        map[string][]outcome
	windowSize     int
	windowDuration time.Duration
}

// NewMonitor creates a new health monitor with default configuration.
func NewMonitor() *Monitor {
	return NewMonitorWithConfig(config.HealthWindowSize,
		time.Duration(config.HealthWindowDurationMinutes)*time.Minute)
}

// NewMonitorWithConfig creates a monitor with custom window settings.
func NewMonitorWithConfig(windowSize int, windowDuration time.Duration) *Monitor {
	return &Monitor{
		windows:        make(map[string][]outcome),
		windowSize:     windowSize,
		windowDuration: windowDuration,
	}
}

// RecordOutcome records a submission outcome for a provider.
func (m *Monitor) RecordOutcome(providerName string, code model.ResponseCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows[providerName] = append(m.windows[providerName], outcome{
		code:      code,
		timestamp: time.Now(),
	})
	m.windows[providerName] = m.active(providerName)
}

// GetHealth returns the current health information for a provider.
func (m *Monitor) GetHealth(providerName string) ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := ProviderHealth{
		ProviderName: providerName,
		HealthScore:  1.0,
		Status:       StatusHealthy,
		LastUpdated:  time.Now(),
	}

	window := m.active(providerName)
	if len(window) == 0 {
		return h
	}

	answered := 0
	for _, o := range window {
		switch {
		case o.code == model.Approved:
			h.ApprovedCount++
		case o.code == model.Declined:
			h.DeclinedCount++
		default:
			h.ErrorCount++
		}
		if o.answered() {
			answered++
		}
	}

	h.TotalRecent = len(window)
	h.HealthScore = float64(answered) / float64(len(window))
	switch {
	case h.TotalRecent < config.CircuitMinSamples:
	case h.HealthScore < config.CircuitBreakerThreshold:
		h.Status = StatusOpen
	case h.HealthScore < config.DegradedThreshold:
		h.Status = StatusDegraded
	}
	return h
}

// GetAllHealth returns health information for all tracked providers.
func (m *Monitor) GetAllHealth() []ProviderHealth {
	m.mu.RLock()
	names := make([]string, 0, len(m.windows))
	for name := range m.windows {
		names = append(names, name)
	}
	m.mu.RUnlock()

	healths := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		healths = append(healths, m.GetHealth(name))
	}
	return healths
}

// IsCircuitOpen returns true if the provider should not be called at all.
func (m *Monitor) IsCircuitOpen(providerName string) bool {
	return m.GetHealth(providerName).Status == StatusOpen
}

// active returns the most recent outcomes inside the time window. Callers hold the lock.
func (m *Monitor) active(providerName string) []outcome {
	window := m.windows[providerName]
	if len(window) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-m.windowDuration)
	kept := make([]outcome, 0, len(window))
	for _, o := range window {
		if o.timestamp.After(cutoff) {
			kept = append(kept, o)
		}
	}
	if len(kept) > m.windowSize {
		kept = kept[len(kept)-m.windowSize:]
	}
	return kept
}
