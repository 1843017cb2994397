package memstack

import (
	"sync/atomic"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordAllocate is called after each allocation attempt.
	// size is the requested byte count, err is nil on success.
	RecordAllocate(size int, err error)

	// RecordGrow is called when the stack acquires a new block.
	RecordGrow(blockSize int)

	// RecordUnwind is called after each unwind with the number of bytes
	// reclaimed.
	RecordUnwind(bytes int)

	// RecordTrim is called when spare blocks are returned to the source.
	RecordTrim(blocks, bytes int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocate(int, error) {}
func (NoopMetricsCollector) RecordGrow(int)            {}
func (NoopMetricsCollector) RecordUnwind(int)          {}
func (NoopMetricsCollector) RecordTrim(int, int)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Safe for use by multiple stacks concurrently.
type BasicMetricsCollector struct {
	allocs         atomic.Uint64
	allocFailures  atomic.Uint64
	bytesRequested atomic.Uint64
	grows          atomic.Uint64
	unwinds        atomic.Uint64
	bytesReclaimed atomic.Uint64
	trims          atomic.Uint64
	bytesTrimmed   atomic.Uint64
}

// BasicMetrics is a snapshot of a BasicMetricsCollector.
type BasicMetrics struct {
	Allocs         uint64
	AllocFailures  uint64
	BytesRequested uint64
	Grows          uint64
	Unwinds        uint64
	BytesReclaimed uint64
	Trims          uint64
	BytesTrimmed   uint64
}

func (c *BasicMetricsCollector) RecordAllocate(size int, err error) {
	if err != nil {
		c.allocFailures.Add(1)
		return
	}
	c.allocs.Add(1)
	c.bytesRequested.Add(uint64(size))
}

func (c *BasicMetricsCollector) RecordGrow(blockSize int) {
	c.grows.Add(1)
}

func (c *BasicMetricsCollector) RecordUnwind(bytes int) {
	c.unwinds.Add(1)
	c.bytesReclaimed.Add(uint64(bytes))
}

func (c *BasicMetricsCollector) RecordTrim(blocks, bytes int) {
	c.trims.Add(1)
	c.bytesTrimmed.Add(uint64(bytes))
}

// Snapshot returns the current metric values.
func (c *BasicMetricsCollector) Snapshot() BasicMetrics {
	return BasicMetrics{
		Allocs:         c.allocs.Load(),
		AllocFailures:  c.allocFailures.Load(),
		BytesRequested: c.bytesRequested.Load(),
		Grows:          c.grows.Load(),
		Unwinds:        c.unwinds.Load(),
		BytesReclaimed: c.bytesReclaimed.Load(),
		Trims:          c.trims.Load(),
		BytesTrimmed:   c.bytesTrimmed.Load(),
	}
}
