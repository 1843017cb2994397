// Package mmap provides anonymous memory mappings for off-heap allocation.
//
// # Overview
//
// MapAnon creates read-write anonymous mappings that live outside the Go
// garbage collector's control. The stack allocator uses them to obtain large
// memory blocks whose bases are page-aligned, which makes offset arithmetic
// and alignment guarantees cheap.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT
//
// # Thread Safety
//
// A Mapping is safe for concurrent read access. Close() is idempotent and
// protected by atomic operations, but callers must ensure no goroutine
// accesses Bytes() after Close() returns.
package mmap
