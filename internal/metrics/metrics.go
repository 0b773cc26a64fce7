package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rows accepted by the target store
	RowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpx_rows_written_total",
		Help: "Total number of GPX rows accepted by the target store",
	})

	SegmentsLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpx_segments_loaded_total",
		Help: "Total number of track segments committed",
	})

	// Write errors
	WriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpx_write_errors_total",
		Help: "Total number of failed batch writes",
	})

	// Store write latency
	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gpx_write_duration_seconds",
		Help:    "Time taken to write one segment batch",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
	})

	BatchSizeRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gpx_batch_size_rows",
		Help:    "Number of rows per segment batch",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10 to ~40k rows
	})
)
