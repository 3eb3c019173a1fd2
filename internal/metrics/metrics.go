// Package metrics holds the Prometheus instrumentation for a build or
// match run, served by internal/statusserver's /metrics route when a
// status address is configured.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the pipeline emits.
type Metrics struct {
	FilesIndexedTotal     prometheus.CounterVec
	DecodeFailuresTotal   prometheus.CounterVec
	LandmarksEmittedTotal prometheus.Counter
	BucketOverflowsTotal  prometheus.Counter
	QueueDepth            prometheus.Gauge
	BuildDuration         prometheus.Histogram
	QueryDuration         prometheus.Histogram
	DuplicatePassDuration prometheus.Histogram
	CacheHitsTotal        prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide Metrics singleton, registering
// collectors on first call.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			FilesIndexedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundmark_files_indexed_total",
					Help: "Files successfully fingerprinted and added to the index",
				},
				[]string{"status"},
			),
			DecodeFailuresTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundmark_decode_failures_total",
					Help: "Files skipped due to decoder failure",
				},
				[]string{"reason"},
			),
			LandmarksEmittedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "soundmark_landmarks_emitted_total",
				Help: "Landmarks produced by the hasher across all files",
			}),
			BucketOverflowsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "soundmark_bucket_overflows_total",
				Help: "Postings silently dropped because their bucket hit bucket_cap",
			}),
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "soundmark_worker_queue_depth",
				Help: "Jobs queued for the DSP workers but not yet picked up",
			}),
			BuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "soundmark_build_duration_seconds",
				Help:    "Wall-clock time for a worker to decode and fingerprint one file",
				Buckets: prometheus.DefBuckets,
			}),
			QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "soundmark_query_duration_seconds",
				Help:    "Wall-clock time for one clip lookup",
				Buckets: prometheus.DefBuckets,
			}),
			DuplicatePassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "soundmark_duplicate_pass_duration_seconds",
				Help:    "Wall-clock time for one full duplicate pass",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
			}),
			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundmark_query_cache_total",
					Help: "Clip-lookup cache lookups by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return instance
}
