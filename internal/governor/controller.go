package governor

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when the memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxReclaimWorkers is the maximum number of concurrent background
	// reclaim jobs. If 0, defaults to 1.
	MaxReclaimWorkers int64

	// ReleaseRateBytesPerSec is the maximum throughput at which trimmed
	// blocks are returned to their source. If 0, unlimited.
	ReleaseRateBytesPerSec int64
}

// Controller manages block-source resources (memory, reclaim concurrency).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Reclaim concurrency
	reclaimSem *semaphore.Weighted

	// Release throughput
	releaseLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxReclaimWorkers <= 0 {
		cfg.MaxReclaimWorkers = 1
	}

	c := &Controller{
		cfg:        cfg,
		reclaimSem: semaphore.NewWeighted(cfg.MaxReclaimWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.ReleaseRateBytesPerSec > 0 {
		c.releaseLimiter = rate.NewLimiter(rate.Limit(cfg.ReleaseRateBytesPerSec), int(cfg.ReleaseRateBytesPerSec))
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if the limit would be exceeded.
// Non-blocking - callers control retry/backoff policy.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireReclaim attempts to reserve a reclaim worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireReclaim(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.reclaimSem.Acquire(ctx, 1)
}

// ReleaseReclaim releases a reclaim worker slot.
func (c *Controller) ReleaseReclaim() {
	if c == nil {
		return
	}
	c.reclaimSem.Release(1)
}

// WaitRelease waits until the release rate limit allows the specified
// number of bytes.
func (c *Controller) WaitRelease(ctx context.Context, bytes int) error {
	if c == nil || c.releaseLimiter == nil {
		return nil
	}
	// WaitN cannot exceed the limiter burst; split large releases.
	burst := c.releaseLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.releaseLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
