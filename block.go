package memstack

import (
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/memstack/internal/governor"
	"github.com/hupe1980/memstack/internal/mmap"
)

// Block is one contiguous chunk of memory owned by a Stack.
// Blocks are created by a BlockSource and returned to it when the stack
// trims its chain or closes.
type Block struct {
	buf     []byte
	mapping *mmap.Mapping // non-nil when the block is an off-heap mapping
	cursor  int
}

// NewBlock wraps an existing buffer in a Block. Custom BlockSource
// implementations use it to hand memory to a Stack.
func NewBlock(buf []byte) *Block {
	return &Block{buf: buf}
}

// Cap returns the block's capacity in bytes.
func (b *Block) Cap() int {
	return len(b.buf)
}

func (b *Block) remaining() int {
	return len(b.buf) - b.cursor
}

// BlockSource supplies raw memory blocks to stacks. Implementations must be
// safe for concurrent use when shared across stacks; the default sources are.
type BlockSource interface {
	// AcquireBlock returns a block of at least minSize contiguous bytes.
	AcquireBlock(minSize int) (*Block, error)

	// ReleaseBlock returns a block obtained from AcquireBlock. The block
	// must not be used afterwards.
	ReleaseBlock(b *Block) error
}

type sourceConfig struct {
	memoryLimit int64
}

// SourceOption configures a block source.
type SourceOption func(*sourceConfig)

// WithMemoryLimit sets a hard budget for memory held by blocks acquired from
// the source. Acquisitions beyond the budget fail.
func WithMemoryLimit(bytes int64) SourceOption {
	return func(c *sourceConfig) {
		c.memoryLimit = bytes
	}
}

func newSourceController(opts []SourceOption) *governor.Controller {
	var cfg sourceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.memoryLimit <= 0 {
		return nil
	}
	return governor.NewController(governor.Config{MemoryLimitBytes: cfg.memoryLimit})
}

// HeapSource supplies GC-managed blocks via make([]byte). It is the default
// source. Safe for concurrent use.
type HeapSource struct {
	ctrl *governor.Controller
}

// NewHeapSource creates a heap-backed block source.
func NewHeapSource(opts ...SourceOption) *HeapSource {
	return &HeapSource{ctrl: newSourceController(opts)}
}

// AcquireBlock returns a zeroed block of exactly minSize bytes.
func (s *HeapSource) AcquireBlock(minSize int) (*Block, error) {
	if minSize <= 0 {
		return nil, fmt.Errorf("%w: invalid block size %d", ErrOutOfMemory, minSize)
	}
	if err := s.ctrl.AcquireMemory(int64(minSize)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	return &Block{buf: make([]byte, minSize)}, nil
}

// ReleaseBlock drops the block's buffer, making it eligible for GC.
func (s *HeapSource) ReleaseBlock(b *Block) error {
	if b == nil || b.buf == nil {
		return nil
	}
	s.ctrl.ReleaseMemory(int64(len(b.buf)))
	b.buf = nil
	return nil
}

// MemoryUsage returns the bytes currently held by blocks from this source.
func (s *HeapSource) MemoryUsage() int64 {
	return s.ctrl.MemoryUsage()
}

var pageSize = sync.OnceValue(os.Getpagesize)

// MmapSource supplies off-heap blocks via anonymous memory mappings. Block
// sizes are rounded up to the page size, so block bases are page-aligned and
// the memory adds no GC pressure. Safe for concurrent use.
type MmapSource struct {
	ctrl *governor.Controller
}

// NewMmapSource creates an mmap-backed block source.
func NewMmapSource(opts ...SourceOption) *MmapSource {
	return &MmapSource{ctrl: newSourceController(opts)}
}

// AcquireBlock maps an anonymous region of at least minSize bytes.
func (s *MmapSource) AcquireBlock(minSize int) (*Block, error) {
	if minSize <= 0 {
		return nil, fmt.Errorf("%w: invalid block size %d", ErrOutOfMemory, minSize)
	}

	ps := pageSize()
	size := (minSize + ps - 1) / ps * ps

	if err := s.ctrl.AcquireMemory(int64(size)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	m, err := mmap.MapAnon(size)
	if err != nil {
		s.ctrl.ReleaseMemory(int64(size))
		return nil, fmt.Errorf("%w: failed to map anonymous memory: %w", ErrOutOfMemory, err)
	}

	return &Block{buf: m.Bytes(), mapping: m}, nil
}

// ReleaseBlock unmaps the block's memory.
func (s *MmapSource) ReleaseBlock(b *Block) error {
	if b == nil || b.buf == nil {
		return nil
	}
	size := len(b.buf)
	b.buf = nil
	if b.mapping != nil {
		if err := b.mapping.Close(); err != nil {
			return err
		}
		b.mapping = nil
	}
	s.ctrl.ReleaseMemory(int64(size))
	return nil
}

// MemoryUsage returns the bytes currently mapped by this source.
func (s *MmapSource) MemoryUsage() int64 {
	return s.ctrl.MemoryUsage()
}
