package memstack

import "errors"

var (
	// ErrOutOfMemory is returned when the block source cannot supply a block
	// large enough for a request, or growth would exceed the configured
	// ceiling.
	ErrOutOfMemory = errors.New("memstack: out of memory")

	// ErrInvalidAlignment is returned when an alignment is not a positive
	// power of two.
	ErrInvalidAlignment = errors.New("memstack: alignment must be a positive power of two")

	// ErrSizeOverflow is returned when an allocation size is negative or an
	// array size computation overflows.
	ErrSizeOverflow = errors.New("memstack: allocation size overflow")

	// ErrClosed is returned when using a stack after Close.
	ErrClosed = errors.New("memstack: stack is closed")
)
