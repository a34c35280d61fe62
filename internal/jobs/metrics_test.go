package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerRecordsStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	require.NoError(t, m.Track("reconcile").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("reconcile").End(boom), boom)

	body := scrape(t, registry)
	require.Contains(t, body, `comisiones_jobs_total{job="reconcile",status="success"} 1`)
	require.Contains(t, body, `comisiones_jobs_total{job="reconcile",status="failure"} 1`)
	require.Contains(t, body, `comisiones_jobs_failures_total{job="reconcile"} 1`)
}

func TestChunkAndDecisionCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveChunk("succeeded", 1, time.Second)
	m.ObserveChunk("failed", 4, 3*time.Second)
	m.ObserveRetry()
	m.RecordDecision("carried")
	m.RecordDecision("carried")

	body := scrape(t, registry)
	require.Contains(t, body, `comisiones_upload_chunks_total{outcome="failed"} 1`)
	require.Contains(t, body, `comisiones_upload_retries_total 1`)
	require.Contains(t, body, `comisiones_balance_decisions_total{outcome="carried"} 2`)
	require.Contains(t, body, `comisiones_upload_chunk_attempts_count 2`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveChunk("failed", 1, time.Second)
	m.ObserveRetry()
	m.RecordDecision("skipped")
	require.NoError(t, m.Track("x").End(nil))
}
