package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLivenessAlwaysHealthy(t *testing.T) {
	checker := NewHealthChecker()

	w := httptest.NewRecorder()
	checker.Liveness(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), StatusHealthy)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	checker := NewHealthChecker()
	checker.Register("oidc_provider", func(ctx context.Context) error { return nil })
	checker.Register("sp_metadata", func(ctx context.Context) error {
		return errors.New("SP ACS URL not configured")
	})

	w := httptest.NewRecorder()
	checker.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "SP ACS URL not configured")
	assert.Contains(t, w.Body.String(), StatusUnhealthy)
}

func TestReadinessHealthy(t *testing.T) {
	checker := NewHealthChecker()
	checker.Register("oidc_provider", func(ctx context.Context) error { return nil })

	w := httptest.NewRecorder()
	checker.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
