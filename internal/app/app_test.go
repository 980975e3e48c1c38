package app

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mastermarket/mastermarket/internal/observability"
	"github.com/mastermarket/mastermarket/internal/summary"
	_ "github.com/mastermarket/mastermarket/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "s3cret")
	t.Setenv("TRENDING_CACHE_TTL", "90s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 90*time.Second, cfg.TrendingCacheTTL)
	require.Equal(t, 5*time.Second, cfg.PlacesTimeout)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestRouterHealthReportsDegradedDependency(t *testing.T) {
	router := NewRouter(RouterParams{
		Health: map[string]HealthCheck{
			"postgres": func(*http.Request) error { return nil },
			"redis":    func(*http.Request) error { return errors.New("down") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"degraded","postgres":"ok","redis":"unavailable"}`, rec.Body.String())
}

func TestRouterMountsHandlers(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Metrics:        metrics,
		SummaryHandler: summary.NewHandler(nil, summary.NewService(nil)),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/abc/summary", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `mastermarket_http_requests_total{code="400",route="/products/{id}/summary"} 1`)
}
