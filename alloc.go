package memstack

import (
	"fmt"
	"unsafe"

	"github.com/hupe1980/memstack/internal/conv"
)

// Alloc allocates a zeroed T inside the scope. The returned pointer is valid
// until the scope is released.
//
// T must not contain Go pointers: scope memory is not scanned by the garbage
// collector.
func Alloc[T any](t *Temp) (*T, error) {
	var zero T
	b, err := t.Allocate(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	clear(b)
	return (*T)(unsafe.Pointer(unsafe.SliceData(b))), nil
}

// AllocUninit allocates a T inside the scope without zeroing the memory.
// Faster than Alloc, but the contents are undefined; blocks reused after an
// unwind carry earlier allocations' bytes.
func AllocUninit[T any](t *Temp) (*T, error) {
	var zero T
	b, err := t.Allocate(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(b))), nil
}

// MakeSlice allocates a zeroed slice of n elements of T inside the scope,
// with len and cap both n. A zero length yields a nil slice; a negative
// length fails with ErrSizeOverflow.
func MakeSlice[T any](t *Temp, n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrSizeOverflow, n)
	}
	if n == 0 {
		return nil, nil
	}
	var zero T
	total, err := conv.MulInt(n, int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, ErrSizeOverflow
	}
	b, err := t.Allocate(total, int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	clear(b)
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n), nil
}
