package memstack

import (
	"fmt"
	"math"

	"github.com/hupe1980/memstack/internal/conv"
)

// UnboundedAlignment is returned by MaxAlignment when growth can satisfy any
// power-of-two alignment, at the cost of acquiring a fresh block.
const UnboundedAlignment = math.MaxInt

// Allocator is the capability interface consumed by generic container-style
// code. Containers depend on it rather than on the concrete Temp type.
//
// Deallocation is a no-op by design: individual reclamation is unsupported,
// all memory is reclaimed in bulk when the owning scope is released.
type Allocator interface {
	// AllocateNode allocates a single node. The caller must ensure
	// size <= MaxNodeSize(); violating the precondition is a bug in the
	// calling code and panics.
	AllocateNode(size, align int) ([]byte, error)

	// AllocateArray allocates count contiguous elements of elemSize bytes.
	// Overflow of count*elemSize fails with ErrSizeOverflow.
	AllocateArray(count, elemSize, align int) ([]byte, error)

	// DeallocateNode is a no-op.
	DeallocateNode(p []byte)

	// DeallocateArray is a no-op.
	DeallocateArray(p []byte)

	// MaxNodeSize returns an advisory upper bound for a single allocation
	// that is guaranteed not to trigger block growth.
	MaxNodeSize() int

	// MaxAlignment returns the largest supported alignment.
	MaxAlignment() int
}

var _ Allocator = (*Temp)(nil)

// AllocateNode allocates a single node through the scope. Requests above
// MaxNodeSize violate the no-growth contract and panic; use Allocate for
// requests that may grow the stack.
func (t *Temp) AllocateNode(size, align int) ([]byte, error) {
	if size > t.MaxNodeSize() {
		panic(fmt.Sprintf("memstack: node size %d exceeds max node size %d", size, t.MaxNodeSize()))
	}
	return t.Allocate(size, align)
}

// AllocateArray allocates count contiguous elements of elemSize bytes each.
func (t *Temp) AllocateArray(count, elemSize, align int) ([]byte, error) {
	total, err := conv.MulInt(count, elemSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSizeOverflow, err)
	}
	return t.AllocateNode(total, align)
}

// DeallocateNode is a no-op; the scope reclaims everything on Release.
func (t *Temp) DeallocateNode(p []byte) {}

// DeallocateArray is a no-op; the scope reclaims everything on Release.
func (t *Temp) DeallocateArray(p []byte) {}

// MaxNodeSize returns the capacity remaining in the stack's current block.
func (t *Temp) MaxNodeSize() int {
	t.check()
	return t.stack.CapacityRemaining()
}

// MaxAlignment is unbounded: growth can always satisfy an alignment request
// by acquiring a fresh, sufficiently sized block.
func (t *Temp) MaxAlignment() int {
	return UnboundedAlignment
}
