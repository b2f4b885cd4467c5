package sv

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so session expiry, lockouts and
// timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current UTC time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces the UUIDs that name files, folders and upload
// sessions. File IDs double as key-derivation salts, so they stay raw
// UUIDs rather than strings.
type IDGenerator interface {
	New() uuid.UUID
}

// UUIDGenerator produces random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() uuid.UUID { return uuid.New() }
