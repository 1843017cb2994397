package memstack

import (
	"context"
	"sync"

	"github.com/hupe1980/memstack/internal/governor"
)

type reclaimerConfig struct {
	workers int64
	rate    int64
	logger  *Logger
}

// ReclaimerOption configures a Reclaimer.
type ReclaimerOption func(*reclaimerConfig)

// WithReclaimWorkers bounds the number of concurrent background reclaim
// jobs. Defaults to 1.
func WithReclaimWorkers(n int64) ReclaimerOption {
	return func(c *reclaimerConfig) {
		c.workers = n
	}
}

// WithReleaseRate throttles the rate at which reclaimed blocks are returned
// to the source, in bytes per second. Unlimited by default.
func WithReleaseRate(bytesPerSec int64) ReclaimerOption {
	return func(c *reclaimerConfig) {
		c.rate = bytesPerSec
	}
}

// WithReclaimerLogger enables structured logging of background release
// failures. Without it a failed release is silent, and for a budget-governed
// source the failed block's bytes stay charged against the budget.
func WithReclaimerLogger(l *Logger) ReclaimerOption {
	return func(c *reclaimerConfig) {
		c.logger = l
	}
}

// Reclaimer returns trimmed block chains to their source in the background,
// keeping release work off the allocation path. Once a chain is handed to
// the reclaimer it owns the blocks exclusively; the stack no longer
// references them, so background release is safe.
//
// A reclaimer is bound to one BlockSource and may serve many stacks.
type Reclaimer struct {
	src    BlockSource
	ctrl   *governor.Controller
	logger *Logger
	wg     sync.WaitGroup
}

// NewReclaimer creates a reclaimer for the given source.
func NewReclaimer(src BlockSource, opts ...ReclaimerOption) *Reclaimer {
	var cfg reclaimerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reclaimer{
		src:    src,
		logger: cfg.logger,
		ctrl: governor.NewController(governor.Config{
			MaxReclaimWorkers:      cfg.workers,
			ReleaseRateBytesPerSec: cfg.rate,
		}),
	}
}

// Reclaim schedules the blocks for background release. The caller must not
// use them afterwards.
func (r *Reclaimer) Reclaim(blocks []*Block) {
	if len(blocks) == 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := context.Background()
		if err := r.ctrl.AcquireReclaim(ctx); err != nil {
			return
		}
		defer r.ctrl.ReleaseReclaim()

		for _, b := range blocks {
			if err := r.ctrl.WaitRelease(ctx, b.Cap()); err != nil {
				return
			}
			if err := r.src.ReleaseBlock(b); err != nil && r.logger != nil {
				r.logger.Warn("block release failed", "size", b.Cap(), "error", err)
			}
		}
	}()
}

// Close waits for all in-flight reclaim jobs to finish.
func (r *Reclaimer) Close() error {
	r.wg.Wait()
	return nil
}
