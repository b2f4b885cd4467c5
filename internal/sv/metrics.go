package sv

import "time"

// Metrics receives pipeline instrumentation.
type Metrics interface {
	FileIngested(path string, bytes int64, elapsed time.Duration, compressionRatio float64)
	IngestFailed(stage string)
	FileRead(result string)
	AuthAttempt(method, result string)
}

// NopMetrics discards everything. Use in tests.
type NopMetrics struct{}

func (NopMetrics) FileIngested(string, int64, time.Duration, float64) {}
func (NopMetrics) IngestFailed(string)                                {}
func (NopMetrics) FileRead(string)                                    {}
func (NopMetrics) AuthAttempt(string, string)                         {}
