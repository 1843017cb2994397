// Package pool provides a fixed-size node allocator on top of a memstack
// arena.
//
// A Pool carves nodes of one size out of its own block chain and keeps
// returned nodes on a free list, so nodes can be freed in any order - unlike
// the stack itself, which only reclaims in bulk. Allocation and deallocation
// are list operations and thus fast. This kind of allocator fits fixed-size
// workloads such as linked-list or tree nodes.
//
// Returned nodes are tracked in a slot bitset, which turns a double Put into
// a detected error instead of silent free-list corruption.
package pool
