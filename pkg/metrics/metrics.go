package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog metrics
	DisksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ngas_disks_total",
			Help: "Total number of managed disks by completion state",
		},
		[]string{"state"},
	)

	FilesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ngas_files_total",
			Help: "Total number of catalogued files",
		},
	)

	BytesStoredTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ngas_bytes_stored_total",
			Help: "Total bytes stored across all managed disks",
		},
	)

	// Archive metrics
	ArchiveRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngas_archive_requests_total",
			Help: "Total number of archive requests by command and status",
		},
		[]string{"command", "status"},
	)

	ArchiveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ngas_archive_duration_seconds",
			Help:    "Archive request duration in seconds by command",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800}, // 100ms to 30min
		},
		[]string{"command"},
	)

	ArchiveBytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngas_archive_bytes_received_total",
			Help: "Total bytes received on the archive path",
		},
	)

	IngestRate = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ngas_archive_ingest_rate_bytes_per_second",
			Help:    "Per-request ingest rate in bytes per second",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10), // 64 KiB/s up
		},
	)

	// Staging telemetry
	SlowReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngas_staging_slow_reads_total",
			Help: "Total block reads slower than the slow-transfer threshold",
		},
	)

	SlowWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngas_staging_slow_writes_total",
			Help: "Total block writes slower than the slow-transfer threshold",
		},
	)

	ChecksumMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngas_checksum_mismatches_total",
			Help: "Total archive requests failed on checksum verification",
		},
	)

	DisksCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngas_disks_completed_total",
			Help: "Total disks flagged completed by the free-space threshold",
		},
	)

	SubscriptionPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ngas_subscription_pending_total",
			Help: "Files queued for the subscription worker",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(DisksTotal)
	prometheus.MustRegister(FilesTotal)
	prometheus.MustRegister(BytesStoredTotal)
	prometheus.MustRegister(ArchiveRequestsTotal)
	prometheus.MustRegister(ArchiveDuration)
	prometheus.MustRegister(ArchiveBytesReceived)
	prometheus.MustRegister(IngestRate)
	prometheus.MustRegister(SlowReadsTotal)
	prometheus.MustRegister(SlowWritesTotal)
	prometheus.MustRegister(ChecksumMismatchesTotal)
	prometheus.MustRegister(DisksCompletedTotal)
	prometheus.MustRegister(SubscriptionPending)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
