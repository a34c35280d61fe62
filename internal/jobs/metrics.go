package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs, upload chunks and
// reconciliation decisions.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	chunks     *prometheus.CounterVec
	chunkTime  prometheus.Histogram
	chunkTries prometheus.Histogram
	retries    prometheus.Counter
	decisions  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObserveChunk records the final state of one upload chunk.
func (m *Metrics) ObserveChunk(outcome string, attempts int, duration time.Duration) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(outcome).Inc()
	m.chunkTries.Observe(float64(attempts))
	m.chunkTime.Observe(duration.Seconds())
}

// ObserveRetry counts a chunk retry.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// RecordDecision counts one reconciliation outcome.
func (m *Metrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comisiones_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comisiones_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "comisiones_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comisiones_upload_chunks_total",
		Help: "Upload chunks by final state.",
	}, []string{"outcome"})
	chunkTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "comisiones_upload_chunk_duration_seconds",
		Help:    "Time spent on one upload chunk including retries.",
		Buckets: prometheus.DefBuckets,
	})
	chunkTries := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "comisiones_upload_chunk_attempts",
		Help:    "Attempts needed per upload chunk.",
		Buckets: []float64{1, 2, 3, 4, 6, 10},
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "comisiones_upload_retries_total",
		Help: "Upload chunk retries.",
	})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comisiones_balance_decisions_total",
		Help: "Pending balance reconciliation outcomes.",
	}, []string{"outcome"})
	registerer.MustRegister(runs, failures, duration, chunks, chunkTime, chunkTries, retries, decisions)
	return &Metrics{
		runs:       runs,
		failures:   failures,
		duration:   duration,
		chunks:     chunks,
		chunkTime:  chunkTime,
		chunkTries: chunkTries,
		retries:    retries,
		decisions:  decisions,
	}
}
