package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FileIngested("sequential", 1000, 20*time.Millisecond, 0.4)
	m.FileIngested("parallel", 500, time.Second, 1)
	m.IngestFailed("metadata")
	m.FileRead("ok")
	m.FileRead("ok")
	m.FileRead("corrupted")
	m.AuthAttempt("pin", "invalid")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"sequential files", testutil.ToFloat64(m.filesIngested.WithLabelValues("sequential")), 1},
		{"ingest bytes", testutil.ToFloat64(m.ingestBytes), 1500},
		{"metadata failures", testutil.ToFloat64(m.ingestFailures.WithLabelValues("metadata")), 1},
		{"ok reads", testutil.ToFloat64(m.reads.WithLabelValues("ok")), 2},
		{"corrupted reads", testutil.ToFloat64(m.reads.WithLabelValues("corrupted")), 1},
		{"invalid pin attempts", testutil.ToFloat64(m.authAttempts.WithLabelValues("pin", "invalid")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.compressionRatio); n != 1 {
		t.Errorf("compression ratio histogram series = %d, want 1", n)
	}
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("second New() on the same registry did not panic")
		}
	}()
	New(reg)
}
