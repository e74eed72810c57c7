package app

import (
	"context"
	"sync"
)

// HealthStatus classifies a component probe outcome.
type HealthStatus string

const (
	HealthStatusReady    HealthStatus = "ready"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDisabled HealthStatus = "disabled"
)

// ComponentHealth is one probe's report.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthProbe checks one component.
type HealthProbe interface {
	Check(ctx context.Context) ComponentHealth
}

// HealthChecker aggregates health probes for all components.
type HealthChecker struct {
	probes []HealthProbe
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// RegisterProbe adds a health probe.
func (h *HealthChecker) RegisterProbe(probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all registered components.
func (h *HealthChecker) CheckAll(ctx context.Context) []ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// ProbeFunc adapts a function to the HealthProbe interface.
type ProbeFunc func(ctx context.Context) ComponentHealth

func (f ProbeFunc) Check(ctx context.Context) ComponentHealth { return f(ctx) }

// ProviderProbe reports whether the generation backend has a credential. API
// connectivity is deliberately not tested here.
func ProviderProbe(configured func() bool) HealthProbe {
	return ProbeFunc(func(ctx context.Context) ComponentHealth {
		if configured() {
			return ComponentHealth{Name: "provider", Status: HealthStatusReady, Message: "credential configured"}
		}
		return ComponentHealth{Name: "provider", Status: HealthStatusDegraded, Message: "no API credential; generation calls will fail"}
	})
}

// AuthProbe reports whether bearer authentication is active.
func AuthProbe(enabled func() bool) HealthProbe {
	return ProbeFunc(func(ctx context.Context) ComponentHealth {
		if enabled() {
			return ComponentHealth{Name: "auth", Status: HealthStatusReady}
		}
		return ComponentHealth{Name: "auth", Status: HealthStatusDisabled, Message: "no API keys configured, requests are unauthenticated"}
	})
}

// TaskStoreProbe reports the current task retention count.
func TaskStoreProbe(store *InMemoryTaskStore) HealthProbe {
	return ProbeFunc(func(ctx context.Context) ComponentHealth {
		return ComponentHealth{
			Name:    "task_store",
			Status:  HealthStatusReady,
			Details: map[string]any{"tasks": store.Count()},
		}
	})
}
