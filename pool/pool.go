package pool

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/memstack"
)

const (
	// MinNodeSize is the smallest supported node size.
	MinNodeSize = 8
	// maxNodeAlignment caps the alignment derived from the node size.
	maxNodeAlignment = 16
)

var (
	// ErrDoubleFree is returned when a node is put back twice.
	ErrDoubleFree = errors.New("pool: node already freed")
	// ErrForeignNode is returned when a node does not belong to the pool.
	ErrForeignNode = errors.New("pool: node does not belong to this pool")
)

// Node is a fixed-size allocation handed out by a Pool.
type Node struct {
	buf  []byte
	slot uint
}

// Bytes returns the node's memory. Contents are undefined for reused nodes.
func (n Node) Bytes() []byte {
	return n.buf
}

// Pool is a fixed-node-size allocator drawing memory from its own stack.
// Like the stack it is single-owner: one pool per worker goroutine.
type Pool struct {
	stack    *memstack.Stack
	nodeSize int
	align    int
	nodes    [][]byte // every node ever carved, indexed by slot
	free     []uint   // free slots, most recently freed last
	inUse    *bitset.BitSet
}

// New creates a pool of nodes of the given size. Node sizes below
// MinNodeSize are rounded up. Stack options configure the backing arena.
func New(nodeSize int, opts ...memstack.Option) (*Pool, error) {
	if nodeSize < MinNodeSize {
		nodeSize = MinNodeSize
	}

	s, err := memstack.New(opts...)
	if err != nil {
		return nil, err
	}

	return &Pool{
		stack:    s,
		nodeSize: nodeSize,
		align:    alignFor(nodeSize),
		inUse:    bitset.New(64),
	}, nil
}

// alignFor picks the natural alignment for a node size: the next power of
// two, capped at maxNodeAlignment.
func alignFor(nodeSize int) int {
	a := 1
	for a < nodeSize && a < maxNodeAlignment {
		a <<= 1
	}
	return a
}

// Get returns a node, popping the free list or carving a fresh node from
// the arena. The node's contents are undefined.
func (p *Pool) Get() (Node, error) {
	if n := len(p.free); n > 0 {
		slot := p.free[n-1]
		p.free = p.free[:n-1]
		p.inUse.Set(slot)
		return Node{buf: p.nodes[slot], slot: slot}, nil
	}

	buf, err := p.stack.Allocate(p.nodeSize, p.align)
	if err != nil {
		return Node{}, err
	}

	slot := uint(len(p.nodes))
	p.nodes = append(p.nodes, buf)
	p.inUse.Set(slot)
	return Node{buf: buf, slot: slot}, nil
}

// Put returns a node to the free list. Nodes may be put back in any order.
func (p *Pool) Put(n Node) error {
	if int(n.slot) >= len(p.nodes) || n.buf == nil || &p.nodes[n.slot][0] != &n.buf[0] {
		return ErrForeignNode
	}
	if !p.inUse.Test(n.slot) {
		return fmt.Errorf("%w: slot %d", ErrDoubleFree, n.slot)
	}
	p.inUse.Clear(n.slot)
	p.free = append(p.free, n.slot)
	return nil
}

// NodeSize returns the size of each node in the pool.
func (p *Pool) NodeSize() int {
	return p.nodeSize
}

// FreeNodes returns the number of nodes on the free list.
func (p *Pool) FreeNodes() int {
	return len(p.free)
}

// CapacityLeft returns the bytes available without growing the arena: free
// nodes plus the remainder of the current block.
func (p *Pool) CapacityLeft() int {
	return len(p.free)*p.nodeSize + p.stack.CapacityRemaining()
}

// Close releases the pool's memory. All nodes become invalid.
func (p *Pool) Close() error {
	p.nodes, p.free = nil, nil
	p.inUse = nil
	return p.stack.Close()
}
