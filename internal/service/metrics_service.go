package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the attendance commit pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	commitsTotal      prometheus.Counter
	commitConflicts   prometheus.Counter
	recordsCommitted  prometheus.Counter
	recomputeFailures prometheus.Counter
	sessionsStarted   prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	commitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_commits_total",
		Help: "Total number of committed attendance sessions",
	})

	commitConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_commit_conflicts_total",
		Help: "Commits rejected by the same-day duplicate guard",
	})

	recordsCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_records_committed_total",
		Help: "Total ledger rows written by commits",
	})

	recomputeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_recompute_failures_total",
		Help: "Per-student statistics refreshes that failed after a commit",
	})

	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_started_total",
		Help: "Total attendance sessions started",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, commitsTotal, commitConflicts,
		recordsCommitted, recomputeFailures, sessionsStarted, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		commitsTotal:      commitsTotal,
		commitConflicts:   commitConflicts,
		recordsCommitted:  recordsCommitted,
		recomputeFailures: recomputeFailures,
		sessionsStarted:   sessionsStarted,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records request counters and latency.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveCommit records a successful (possibly partial) commit.
func (s *MetricsService) ObserveCommit(recorded, recomputeFailures int) {
	s.commitsTotal.Inc()
	s.recordsCommitted.Add(float64(recorded))
	if recomputeFailures > 0 {
		s.recomputeFailures.Add(float64(recomputeFailures))
	}
}

// ObserveCommitConflict records a commit rejected by the duplicate guard.
func (s *MetricsService) ObserveCommitConflict() {
	s.commitConflicts.Inc()
}

// ObserveSessionStarted records a new attendance session.
func (s *MetricsService) ObserveSessionStarted() {
	s.sessionsStarted.Inc()
}

// ObserveCacheHit records a cache hit.
func (s *MetricsService) ObserveCacheHit() {
	s.cacheHits.Inc()
}

// ObserveCacheMiss records a cache miss.
func (s *MetricsService) ObserveCacheMiss() {
	s.cacheMisses.Inc()
}
