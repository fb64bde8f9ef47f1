package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DependencyCheck probes a single dependency (OIDC issuer, SP metadata, signing keys)
type DependencyCheck func(ctx context.Context) error

// HealthChecker provides liveness and readiness probes for the bridge.
// The bridge holds no database or cache; readiness is about the
// capabilities it was constructed with.
type HealthChecker struct {
	checks map[string]DependencyCheck
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]DependencyCheck)}
}

// Register adds a named dependency check
func (h *HealthChecker) Register(name string, check DependencyCheck) {
	h.checks[name] = check
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always 200 if the server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness runs every registered dependency check and reports 503 if any fails
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status.Status = StatusUnhealthy
			status.Dependencies[name] = DependencyStatus{Status: StatusUnhealthy, Message: err.Error()}
			continue
		}
		status.Dependencies[name] = DependencyStatus{Status: StatusHealthy}
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}
