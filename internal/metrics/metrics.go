// Package metrics instruments the vault with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"securevault/internal/sv"
)

// Prometheus implements sv.Metrics on a caller-supplied registry.
type Prometheus struct {
	filesIngested    *prometheus.CounterVec
	ingestBytes      prometheus.Counter
	ingestFailures   *prometheus.CounterVec
	ingestDuration   *prometheus.HistogramVec
	compressionRatio prometheus.Histogram
	reads            *prometheus.CounterVec
	authAttempts     *prometheus.CounterVec
}

// Compile-time check that Prometheus implements sv.Metrics.
var _ sv.Metrics = (*Prometheus)(nil)

// New registers the vault collectors on reg.
func New(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		filesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_files_ingested_total",
			Help: "Files stored in the vault, by pipeline path.",
		}, []string{"path"}),
		ingestBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "securevault_ingest_bytes_total",
			Help: "Plaintext bytes stored in the vault.",
		}),
		ingestFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_ingest_failures_total",
			Help: "Ingestion failures, by pipeline stage.",
		}, []string{"stage"}),
		ingestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "securevault_ingest_duration_seconds",
			Help:    "Time to compress, encrypt and record one file.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
		}, []string{"path"}),
		compressionRatio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "securevault_compression_ratio",
			Help:    "Stored size over plaintext size for ingested files.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		reads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_reads_total",
			Help: "File reads and exports, by result.",
		}, []string{"result"}),
		authAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_auth_attempts_total",
			Help: "Authentication attempts, by method and result.",
		}, []string{"method", "result"}),
	}
}

func (p *Prometheus) FileIngested(path string, bytes int64, elapsed time.Duration, compressionRatio float64) {
	p.filesIngested.WithLabelValues(path).Inc()
	p.ingestBytes.Add(float64(bytes))
	p.ingestDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	p.compressionRatio.Observe(compressionRatio)
}

func (p *Prometheus) IngestFailed(stage string) {
	p.ingestFailures.WithLabelValues(stage).Inc()
}

func (p *Prometheus) FileRead(result string) {
	p.reads.WithLabelValues(result).Inc()
}

func (p *Prometheus) AuthAttempt(method, result string) {
	p.authAttempts.WithLabelValues(method, result).Inc()
}
