// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts dissected frames by encapsulation key
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strix_dissect_frames_total",
			Help: "Total number of frames dissected",
		},
		[]string{"encap"},
	)

	// MalformedTotal counts faulted layers by protocol
	MalformedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strix_dissect_malformed_total",
			Help: "Total number of layers that ended in a fault",
		},
		[]string{"protocol"},
	)

	// UnclaimedBytesTotal counts bytes handed to the generic data fallback
	UnclaimedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strix_dissect_unclaimed_bytes_total",
			Help: "Total number of bytes no dissector claimed",
		},
	)

	// WarningsTotal counts expert warnings by protocol and group
	WarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strix_dissect_warnings_total",
			Help: "Total number of expert warnings raised while dissecting",
		},
		[]string{"protocol", "group"},
	)

	// DurationSeconds measures per-frame dissection time
	DurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strix_dissect_duration_seconds",
			Help:    "Time spent dissecting one frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
	)

	// PoolInflight tracks frames currently held by pool workers
	PoolInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strix_dissect_pool_inflight",
			Help: "Number of frames currently being dissected by the worker pool",
		},
	)
)
