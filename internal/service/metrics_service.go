package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	optimizerRuns   *prometheus.CounterVec
	optimizerTime   prometheus.Histogram
	bestScore       prometheus.Gauge
	coverage        prometheus.Histogram
	unresolved      prometheus.Histogram
	restarts        prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	runCount             uint64
	runFailures          uint64
	runDurationTotal     uint64
}

// NewMetricsService registers HTTP, cache and optimizer collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "proposal_cache_latency_seconds",
		Help:    "Latency for proposal cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "proposal_cache_hit_ratio",
		Help: "Ratio of proposal cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proposal_cache_hits_total",
		Help: "Total proposal cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proposal_cache_misses_total",
		Help: "Total proposal cache misses",
	})

	optimizerRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "defense_optimizer_runs_total",
		Help: "Optimization runs by outcome",
	}, []string{"outcome"})

	optimizerTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "defense_optimizer_duration_seconds",
		Help:    "Wall time of optimization runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	bestScore := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "defense_optimizer_best_score",
		Help: "Best fitness score of the most recent run",
	})

	coverage := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "defense_optimizer_coverage_ratio",
		Help:    "Fraction of projects assigned per run",
		Buckets: []float64{0.5, 0.75, 0.9, 0.95, 0.99, 1},
	})

	unresolved := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "defense_optimizer_unresolved_conflicts",
		Help:    "Conflicts left unresolved per run",
		Buckets: []float64{0, 1, 2, 5, 10, 25},
	})

	restarts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "defense_optimizer_restarts_total",
		Help: "Population restarts across all runs",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		optimizerRuns, optimizerTime, bestScore, coverage, unresolved, restarts, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		optimizerRuns:   optimizerRuns,
		optimizerTime:   optimizerTime,
		bestScore:       bestScore,
		coverage:        coverage,
		unresolved:      unresolved,
		restarts:        restarts,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveOptimization records a finished run. A nil metrics value marks a
// failed run.
func (m *MetricsService) ObserveOptimization(metrics *models.ScheduleMetrics, duration time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.runCount, 1)
	atomic.AddUint64(&m.runDurationTotal, uint64(duration.Nanoseconds()))
	m.optimizerTime.Observe(duration.Seconds())
	if metrics == nil {
		atomic.AddUint64(&m.runFailures, 1)
		m.optimizerRuns.WithLabelValues("failed").Inc()
		return
	}
	outcome := "ok"
	switch {
	case metrics.Canceled:
		outcome = "canceled"
	case metrics.UnresolvedCount > 0:
		outcome = "unresolved"
	}
	m.optimizerRuns.WithLabelValues(outcome).Inc()
	m.bestScore.Set(metrics.BestScore)
	m.coverage.Observe(metrics.Coverage)
	m.unresolved.Observe(float64(metrics.UnresolvedCount))
	m.restarts.Add(float64(metrics.Restarts))
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	runs := atomic.LoadUint64(&m.runCount)
	runDuration := atomic.LoadUint64(&m.runDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgRunMs float64
	if runs > 0 {
		avgRunMs = float64(runDuration) / float64(runs) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		OptimizerRuns:            runs,
		OptimizerFailures:        atomic.LoadUint64(&m.runFailures),
		AverageOptimizerMs:       avgRunMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
