package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/promotoria/comisiones/internal/observability"
)

type pingAPI struct{}

func (pingAPI) MountRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func newTestRouter(checks map[string]Pinger, perMinute int) http.Handler {
	return NewRouter(RouterParams{
		Config:  &Config{RateLimitPerMinute: perMinute},
		Metrics: observability.NewMetrics(),
		API:     pingAPI{},
		Checks:  checks,
	})
}

func TestRouterServesHealthAPIAndMetrics(t *testing.T) {
	h := newTestRouter(nil, 100)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "comisiones_http_requests_total")
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	h := newTestRouter(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	}, 100)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), `"postgres":"ok"`)
	require.Contains(t, rr.Body.String(), "refused")
}

func TestRateLimitRespondsWithProblem(t *testing.T) {
	h := newTestRouter(nil, 1)

	req := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		return rr
	}
	require.Equal(t, http.StatusOK, req().Code)
	rr := req()
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}
