// Package metrics exposes Prometheus instrumentation for scans, oracle calls,
// the oracle cache and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values used by the recorder.
const (
	OutcomeOK = "ok"

	ScanCompleted = "completed"
	ScanCancelled = "cancelled"
	ScanFailed    = "failed"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Recorder owns every rankgrid collector. A nil *Recorder is valid and
// records nothing, so components can take one unconditionally.
type Recorder struct {
	namespace     string
	latencyBucket []float64
	scanBuckets   []float64
	registry      *prometheus.Registry
	goCollectors  bool

	oracleRequests *prometheus.CounterVec
	oracleLatency  prometheus.Histogram
	scans          *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	cells          *prometheus.CounterVec
	cacheRequests  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

type Option func(*Recorder)

// WithRegistry registers collectors on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(rec *Recorder) { rec.registry = r }
}

func WithNamespace(ns string) Option {
	return func(rec *Recorder) { rec.namespace = ns }
}

// WithLatencyBuckets overrides the oracle latency histogram buckets, in seconds.
func WithLatencyBuckets(b []float64) Option {
	return func(rec *Recorder) { rec.latencyBucket = b }
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(rec *Recorder) { rec.goCollectors = true }
}

func New(opts ...Option) *Recorder {
	rec := &Recorder{
		namespace:     "rankgrid",
		latencyBucket: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		scanBuckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	}
	for _, opt := range opts {
		opt(rec)
	}
	if rec.registry == nil {
		rec.registry = prometheus.NewRegistry()
	}
	if rec.goCollectors {
		rec.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auto := promauto.With(rec.registry)

	rec.oracleRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: rec.namespace,
		Name:      "oracle_requests_total",
		Help:      "Oracle calls by outcome (ok or the oracle error kind).",
	}, []string{"outcome"})

	rec.oracleLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: rec.namespace,
		Name:      "oracle_latency_seconds",
		Help:      "Latency of a single oracle call.",
		Buckets:   rec.latencyBucket,
	})

	rec.scans = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: rec.namespace,
		Name:      "scans_total",
		Help:      "Grid scans by final status.",
	}, []string{"status"})

	rec.scanDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: rec.namespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall-clock duration of grid scans.",
		Buckets:   rec.scanBuckets,
	})

	rec.cells = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: rec.namespace,
		Name:      "cells_total",
		Help:      "Scanned cells by heat-map severity.",
	}, []string{"severity"})

	rec.cacheRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: rec.namespace,
		Name:      "cache_requests_total",
		Help:      "Oracle cache lookups by result.",
	}, []string{"result"})

	rec.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: rec.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	return rec
}

func (r *Recorder) ObserveOracle(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.oracleRequests.WithLabelValues(outcome).Inc()
	r.oracleLatency.Observe(d.Seconds())
}

func (r *Recorder) ObserveScan(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.scans.WithLabelValues(status).Inc()
	r.scanDuration.Observe(d.Seconds())
}

func (r *Recorder) ObserveCell(severity string) {
	if r == nil {
		return
	}
	r.cells.WithLabelValues(severity).Inc()
}

func (r *Recorder) ObserveCache(result string) {
	if r == nil {
		return
	}
	r.cacheRequests.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveHTTP(method, path string, status int) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
