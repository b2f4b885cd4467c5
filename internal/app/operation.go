package app

import (
	"sync"
	"time"
)

// Operation tracks one command run against the vault. Its ID tags every
// log line written while the command runs.
type Operation struct {
	ID      string
	Name    string
	Started time.Time

	mu       sync.Mutex
	Status   string // "success" or "error"
	finished time.Time
}

// NewOperation creates an operation that starts at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:      now.UTC().Format("20060102T150405Z"),
		Name:    name,
		Started: now,
		Status:  "success",
	}
}

// Record marks the operation failed when err is non-nil and returns err.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.mu.Lock()
		op.Status = "error"
		op.mu.Unlock()
	}
	return err
}

// Failed reports whether any recorded step failed.
func (op *Operation) Failed() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.Status == "error"
}

// Finish stamps the end time. Later calls are ignored.
func (op *Operation) Finish(now time.Time) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.finished.IsZero() {
		op.finished = now
	}
}

// Elapsed returns the run time, or 0 before Finish.
func (op *Operation) Elapsed() time.Duration {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.finished.IsZero() {
		return 0
	}
	return op.finished.Sub(op.Started)
}
