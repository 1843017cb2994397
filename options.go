package memstack

// Option configures a Stack.
type Option func(*Stack)

// WithBlockSize sets the size of the stack's first block.
// If n <= 0, DefaultBlockSize is used.
func WithBlockSize(n int) Option {
	return func(s *Stack) {
		if n > 0 {
			s.blockSize = n
		}
	}
}

// WithGrowthFactor sets the factor by which block sizes grow on overflow.
// Values below 1 are clamped to 1 (fixed-size blocks).
func WithGrowthFactor(f float64) Option {
	return func(s *Stack) {
		s.growth = f
	}
}

// WithMaxBlockSize sets the growth ceiling: no single block is ever larger
// than n bytes, and a request that cannot fit in such a block fails with
// ErrOutOfMemory instead of growing indefinitely.
func WithMaxBlockSize(n int) Option {
	return func(s *Stack) {
		if n > 0 {
			s.maxBlock = n
		}
	}
}

// WithMaxBlocks caps the total number of blocks the stack may hold, spares
// included. Defaults to MaxBlocks.
func WithMaxBlocks(n int) Option {
	return func(s *Stack) {
		if n > 0 {
			s.maxBlocks = n
		}
	}
}

// WithBlockSource sets the source supplying raw memory blocks.
// The default is a HeapSource without a memory limit.
func WithBlockSource(src BlockSource) Option {
	return func(s *Stack) {
		s.src = src
	}
}

// WithLogger enables structured logging of block acquisition and trim events.
func WithLogger(l *Logger) Option {
	return func(s *Stack) {
		s.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// allocations, growth and unwinds. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(s *Stack) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		s.metrics = mc
	}
}

// WithReclaimer routes trimmed blocks through a background reclaimer instead
// of releasing them synchronously. The reclaimer must have been created for
// the same block source the stack uses.
func WithReclaimer(r *Reclaimer) Option {
	return func(s *Stack) {
		s.reclaimer = r
	}
}
