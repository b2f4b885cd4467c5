package testutil

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2026-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator returns sequential UUIDs: 00000000-0000-4000-8000-000000000001,
// ...0002, etc. They are valid v4 UUIDs so they work as key-derivation salts.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter uint64
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++

	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], g.counter)
	id[6] = 0x40 // version 4
	id[8] |= 0x80 // RFC 4122 variant
	return id
}
