// Package memstack provides a scoped bump-pointer memory arena for Go.
//
// A Stack carves allocations out of a chain of contiguous blocks by advancing
// a cursor, and reclaims memory in bulk by unwinding to a previously captured
// Marker. This gives alloca()-like semantics - fast allocations tied to a
// lexical scope - but portably and for heap-like allocation patterns.
//
// # Quick Start
//
//	s, _ := memstack.New()
//	defer s.Close()
//
//	func handle(s *memstack.Stack) error {
//	    t := memstack.Scoped(s)
//	    defer t.Release() // everything below is reclaimed here, O(1)
//
//	    buf, err := t.Allocate(4096, 8)
//	    if err != nil {
//	        return err
//	    }
//	    req, err := memstack.Alloc[Request](t)
//	    ...
//	}
//
// # Scopes
//
// Scoped(s) captures a Marker and returns a Temp handle. Releasing the handle
// unwinds the stack to that marker, invalidating every allocation made through
// it. Scopes nest and must be released innermost-first (LIFO); violations are
// detected and panic. Use defer so the rollback runs on every exit path,
// including panics.
//
// # Ownership Model
//
// A Stack is single-owner by contract: one stack per worker goroutine, never
// shared. No operation locks. Use Local to maintain a pool of per-worker
// stacks, or pass stacks explicitly. BlockSources may be shared across stacks
// and are safe for concurrent use.
//
// # Memory Model
//
// Blocks come from a BlockSource: GC-managed buffers (HeapSource, default) or
// off-heap anonymous mappings (MmapSource). Arena memory is not scanned by the
// garbage collector - do not store Go pointers in it.
//
// Unwinding retains freed blocks for reuse, amortizing growth across repeated
// scope enter/exit cycles. Trim returns the retained blocks to the source,
// synchronously or through a background Reclaimer.
//
// # Key Features
//
//   - O(1) allocation (bump-pointer arithmetic) and O(1) scope rollback
//   - Address-based alignment for any power of two
//   - Configurable growth policy with a hard ceiling
//   - Off-heap blocks via anonymous mmap (no GC pressure)
//   - Memory budget, reclaim concurrency and release-rate limits
//   - Fixed-size node pool with arbitrary-order free (package pool)
package memstack
