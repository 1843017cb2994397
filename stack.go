package memstack

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/memstack/internal/conv"
)

const (
	// DefaultBlockSize is the size of a stack's first block (64 KiB).
	DefaultBlockSize = 64 * 1024
	// DefaultGrowthFactor scales the block size on each growth.
	DefaultGrowthFactor = 2.0
	// DefaultMaxBlockSize caps the size of a single block (64 MiB). A request
	// that cannot fit in a block of this size fails with ErrOutOfMemory.
	DefaultMaxBlockSize = 64 * 1024 * 1024
	// MaxBlocks limits the total number of blocks a stack may hold.
	MaxBlocks = 65536
)

var stackIDs atomic.Uint64

// Marker is an opaque snapshot of a stack's allocation frontier. Markers are
// plain comparable values with no ownership semantics; they are coordinates
// into the stack's history, not resources.
//
// A marker stays valid until the stack unwinds to an earlier marker. Unwinding
// to a marker the stack has already moved behind is detected and panics when
// the marker lies beyond the current frontier; a marker invalidated by an
// earlier unwind followed by re-allocation cannot be told apart from a fresh
// one and unwinding to it is undefined.
type Marker struct {
	stack  uint64
	block  int
	cursor int
}

func (m Marker) before(other Marker) bool {
	if m.block != other.block {
		return m.block < other.block
	}
	return m.cursor < other.cursor
}

// Stats tracks stack memory usage metrics.
//
// Historical counters (BlocksAcquired, TotalAllocs, TotalBytes, TotalPadding,
// Unwinds) only ever grow; BytesReserved reflects the memory currently held,
// including retained spare blocks.
type Stats struct {
	BlocksAcquired uint64 // Historical: total blocks ever acquired
	BlocksReleased uint64 // Historical: total blocks returned to the source
	BytesReserved  uint64 // Current: bytes held in the chain and spare list
	TotalAllocs    uint64 // Historical: total allocations
	TotalBytes     uint64 // Historical: bytes requested by allocations
	TotalPadding   uint64 // Historical: alignment padding
	Unwinds        uint64 // Historical: total unwinds
}

// Stack is a scoped bump-pointer arena. It owns an ordered chain of blocks,
// always allocates from the last (current) block, and grows by acquiring new
// blocks from its BlockSource on overflow.
//
// A Stack is single-owner: one stack per worker goroutine, never shared.
// No operation locks, which is the source of its speed.
type Stack struct {
	src       BlockSource
	blocks    []*Block // chain in use; the last block is the allocation target
	spare     []*Block // retained past an unwind for reuse, newest last
	scopes    []Marker // markers of open Temp scopes, innermost last
	blockSize int
	growth    float64
	maxBlock  int
	maxBlocks int
	logger    *Logger
	metrics   MetricsCollector
	reclaimer *Reclaimer
	id        uint64
	closed    bool
	stats     Stats
}

// New creates a stack and eagerly acquires its first block.
func New(opts ...Option) (*Stack, error) {
	s := &Stack{
		blockSize: DefaultBlockSize,
		growth:    DefaultGrowthFactor,
		maxBlock:  DefaultMaxBlockSize,
		maxBlocks: MaxBlocks,
		metrics:   NoopMetricsCollector{},
		id:        stackIDs.Add(1),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger != nil {
		s.logger = s.logger.WithStackID(s.id)
	}
	if s.src == nil {
		s.src = NewHeapSource()
	}
	if s.growth < 1 {
		s.growth = 1
	}
	if s.maxBlock < s.blockSize {
		s.maxBlock = s.blockSize
	}

	b, err := s.acquireBlock(s.blockSize)
	if err != nil {
		return nil, err
	}
	s.blocks = append(s.blocks, b)

	return s, nil
}

// Allocate carves size bytes aligned to align out of the current block,
// growing the chain on overflow. align must be a power of two; alignment is
// computed against the real base address, so it holds for heap blocks too.
//
// A zero-size request is served as a one-byte allocation, so every call
// returns a distinct, non-aliasing address.
//
// The returned slice stays valid until the stack unwinds to a marker captured
// before this allocation.
func (s *Stack) Allocate(size, align int) ([]byte, error) {
	p, err := s.allocate(size, align)
	s.metrics.RecordAllocate(size, err)
	return p, err
}

func (s *Stack) allocate(size, align int) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeOverflow, size)
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAlignment, align)
	}
	if size == 0 {
		size = 1
	}

	cur := s.blocks[len(s.blocks)-1]
	if p, pad, ok := cur.carve(size, align); ok {
		s.record(size, pad)
		return p, nil
	}

	return s.allocateSlow(size, align)
}

// carve bump-allocates from the block, padding the cursor so the returned
// address is a multiple of align. The bounds check is written subtraction-side
// so near-MaxInt sizes cannot wrap past it.
func (b *Block) carve(size, align int) ([]byte, int, bool) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(b.buf)))
	pad := int(-(base + uintptr(b.cursor)) & uintptr(align-1))

	start := b.cursor + pad
	if start < 0 || size > len(b.buf)-start {
		return nil, 0, false
	}

	end := start + size
	b.cursor = end
	return b.buf[start:end:end], pad, true
}

func (s *Stack) allocateSlow(size, align int) ([]byte, error) {
	// Enforce the ceiling before any size arithmetic: with size <= maxBlock
	// and align-1 <= maxBlock-size, size+align-1 cannot overflow.
	if size > s.maxBlock || align-1 > s.maxBlock-size {
		return nil, fmt.Errorf("%w: request of %d bytes (alignment %d) exceeds max block size %d",
			ErrOutOfMemory, size, align, s.maxBlock)
	}

	// size+align-1 guarantees the request fits from any base address.
	need := size + align - 1

	// Reuse a retained block if one can hold the request. Spare blocks are
	// kept newest-last, and growth makes newer blocks larger, so scanning
	// from the end finds a fit fast.
	for i := len(s.spare) - 1; i >= 0; i-- {
		b := s.spare[i]
		if b.Cap() < need {
			continue
		}
		b.cursor = 0
		p, pad, ok := b.carve(size, align)
		if !ok {
			continue
		}
		s.spare = append(s.spare[:i], s.spare[i+1:]...)
		s.blocks = append(s.blocks, b)
		s.record(size, pad)
		return p, nil
	}

	if len(s.blocks)+len(s.spare) >= s.maxBlocks {
		return nil, fmt.Errorf("%w: max blocks (%d) exceeded", ErrOutOfMemory, s.maxBlocks)
	}

	next := int(float64(s.blocks[len(s.blocks)-1].Cap()) * s.growth)
	if next < need {
		next = need
	}
	if next > s.maxBlock {
		next = s.maxBlock
	}

	b, err := s.acquireBlock(next)
	if err != nil {
		return nil, err
	}
	s.blocks = append(s.blocks, b)

	p, pad, ok := b.carve(size, align)
	if !ok {
		return nil, fmt.Errorf("%w: block of %d bytes cannot hold %d bytes aligned to %d",
			ErrOutOfMemory, b.Cap(), size, align)
	}
	s.record(size, pad)
	return p, nil
}

func (s *Stack) acquireBlock(size int) (*Block, error) {
	b, err := s.src.AcquireBlock(size)
	if err != nil {
		if errors.Is(err, ErrOutOfMemory) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	s.stats.BlocksAcquired++
	capU64, _ := conv.IntToUint64(b.Cap())
	s.stats.BytesReserved += capU64
	s.metrics.RecordGrow(b.Cap())
	s.logDebug("block acquired", "size", b.Cap(), "blocks", len(s.blocks)+1)
	return b, nil
}

func (s *Stack) record(size, pad int) {
	s.stats.TotalAllocs++
	sizeU64, _ := conv.IntToUint64(size)
	s.stats.TotalBytes += sizeU64
	padU64, _ := conv.IntToUint64(pad)
	s.stats.TotalPadding += padU64
}

// Marker captures the current allocation frontier. O(1), no side effects.
func (s *Stack) Marker() Marker {
	if s.closed {
		return Marker{stack: s.id}
	}
	return Marker{
		stack:  s.id,
		block:  len(s.blocks) - 1,
		cursor: s.blocks[len(s.blocks)-1].cursor,
	}
}

// Unwind rolls the stack back to the given marker, invalidating every
// allocation made after the marker was captured. Blocks freed by the unwind
// are retained for reuse, amortizing growth across repeated scope cycles;
// call Trim to return them to the source.
//
// Unwind panics on contract violations: a marker from another stack, a
// marker beyond the current frontier, or a marker earlier than an open
// Temp scope (LIFO violation). Unwinding a closed stack is a no-op since
// every block is already released.
func (s *Stack) Unwind(m Marker) {
	if s.closed {
		return
	}
	if m.stack != s.id {
		panic("memstack: marker does not belong to this stack")
	}

	cur := len(s.blocks) - 1
	if m.block > cur || (m.block == cur && m.cursor > s.blocks[cur].cursor) {
		panic("memstack: unwind to stale marker")
	}
	if n := len(s.scopes); n > 0 && m.before(s.scopes[n-1]) {
		panic("memstack: unwind past an open scope")
	}

	reclaimed := s.blocks[m.block].cursor - m.cursor
	for _, b := range s.blocks[m.block+1:] {
		reclaimed += b.cursor
	}

	s.spare = append(s.spare, s.blocks[m.block+1:]...)
	s.blocks = s.blocks[:m.block+1]
	s.blocks[m.block].cursor = m.cursor

	s.stats.Unwinds++
	s.metrics.RecordUnwind(reclaimed)
}

// CapacityRemaining returns the bytes left in the current block only. It is a
// conservative bound: a request at most this large (minus alignment padding)
// is guaranteed not to trigger block growth.
func (s *Stack) CapacityRemaining() int {
	if s.closed {
		return 0
	}
	return s.blocks[len(s.blocks)-1].remaining()
}

// Trim returns retained spare blocks to the source. With a Reclaimer
// configured the release happens in the background; otherwise it is
// synchronous and the first release error is returned.
func (s *Stack) Trim() error {
	if s.closed {
		return ErrClosed
	}
	if len(s.spare) == 0 {
		return nil
	}

	spare := s.spare
	s.spare = nil

	var bytes int
	for _, b := range spare {
		bytes += b.Cap()
	}
	bytesU64, _ := conv.IntToUint64(bytes)
	s.stats.BytesReserved -= bytesU64
	s.stats.BlocksReleased += uint64(len(spare))
	s.metrics.RecordTrim(len(spare), bytes)
	s.logDebug("trimmed spare blocks", "blocks", len(spare), "bytes", bytes)

	if s.reclaimer != nil {
		s.reclaimer.Reclaim(spare)
		return nil
	}

	var firstErr error
	for _, b := range spare {
		if err := s.src.ReleaseBlock(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reset unwinds every allocation and trims retained blocks, leaving the
// stack with its first block only. Panics if a Temp scope is still open.
func (s *Stack) Reset() error {
	if s.closed {
		return ErrClosed
	}
	if len(s.scopes) > 0 {
		panic("memstack: reset with open scopes")
	}
	s.Unwind(Marker{stack: s.id})
	return s.Trim()
}

// Close releases every block back to the source. The stack cannot be reused
// afterwards; operations fail with ErrClosed. Close is idempotent.
func (s *Stack) Close() error {
	if s.closed {
		return nil
	}
	if len(s.scopes) > 0 {
		s.logWarn("stack closed with open scopes", "scopes", len(s.scopes))
	}
	s.closed = true

	var firstErr error
	released := 0
	for _, b := range s.blocks {
		if err := s.src.ReleaseBlock(b); err != nil && firstErr == nil {
			firstErr = err
		}
		released++
	}
	for _, b := range s.spare {
		if err := s.src.ReleaseBlock(b); err != nil && firstErr == nil {
			firstErr = err
		}
		released++
	}

	s.stats.BlocksReleased += uint64(released)
	s.stats.BytesReserved = 0
	s.blocks, s.spare, s.scopes = nil, nil, nil

	return firstErr
}

func (s *Stack) pushScope(m Marker) {
	s.scopes = append(s.scopes, m)
}

func (s *Stack) releaseScope(m Marker) {
	if s.closed {
		return
	}
	n := len(s.scopes)
	if n == 0 || s.scopes[n-1] != m {
		panic("memstack: scope released out of LIFO order")
	}
	s.scopes = s.scopes[:n-1]
	s.Unwind(m)
}

// Stats returns the current stack statistics.
func (s *Stack) Stats() Stats {
	return s.stats
}

// LiveBytes returns the bytes currently reachable on the stack, i.e. the sum
// of every in-use block's fill level.
func (s *Stack) LiveBytes() int {
	var n int
	for _, b := range s.blocks {
		n += b.cursor
	}
	return n
}

// Usage returns the live share of reserved memory as a percentage.
func (s *Stack) Usage() float64 {
	if s.stats.BytesReserved == 0 {
		return 0
	}
	return float64(s.LiveBytes()) / float64(s.stats.BytesReserved) * 100
}

func (s *Stack) String() string {
	return fmt.Sprintf(
		"Stack{blocks: %d, spare: %d, reserved: %.2f KB, live: %.2f KB, usage: %.1f%%, allocs: %d}",
		len(s.blocks),
		len(s.spare),
		float64(s.stats.BytesReserved)/1024,
		float64(s.LiveBytes())/1024,
		s.Usage(),
		s.stats.TotalAllocs,
	)
}
