package grs

import (
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the wire format for record timestamps. Second
// granularity; empty string means "never".
const TimestampLayout = "2006-01-02 15:04:05"

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
// IDs tag log lines and queue jobs, they never become persistent keys.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
