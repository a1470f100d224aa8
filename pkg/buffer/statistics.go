package buffer

import "sync/atomic"

// Statistics tracks buffer activity with atomic counters.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	drops     atomic.Int64
	overflows atomic.Int64
}

// NewStatistics creates a zeroed statistics record.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Write records a successful write.
func (s *Statistics) Write() { s.writes.Add(1) }

// Read records a successful read.
func (s *Statistics) Read() { s.reads.Add(1) }

// Drop records an item discarded by the overflow policy.
func (s *Statistics) Drop() { s.drops.Add(1) }

// Overflow records a write attempted against a full buffer.
func (s *Statistics) Overflow() { s.overflows.Add(1) }

// Writes returns the total number of successful writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the total number of successful reads.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the total number of dropped items.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Overflows returns the total number of writes against a full buffer.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }
