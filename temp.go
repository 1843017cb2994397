package memstack

// Temp is a scope-bound temporary allocator. It captures a marker at
// construction, forwards allocation requests to its stack, and unwinds the
// stack back to the captured marker on Release.
//
// Temp handles are created only through Scoped and must be released
// innermost-first. Bind Release with defer so the rollback runs on every
// exit path:
//
//	t := memstack.Scoped(s)
//	defer t.Release()
//
// A Temp holds no memory itself, only the obligation to trigger the rollback.
// Move transfers that obligation; copying a Temp value is not supported.
type Temp struct {
	stack  *Stack
	marker Marker
	owns   bool
}

// Scoped captures a fresh marker on the stack and returns the handle that
// will unwind to it. This is the only way to obtain a Temp.
func Scoped(s *Stack) *Temp {
	m := s.Marker()
	s.pushScope(m)
	return &Temp{stack: s, marker: m, owns: true}
}

// Allocate forwards to the stack. The returned memory stays valid until this
// handle, or any handle with an earlier marker on the same stack, is
// released.
func (t *Temp) Allocate(size, align int) ([]byte, error) {
	t.check()
	return t.stack.Allocate(size, align)
}

// Bytes allocates n unaligned bytes, shorthand for Allocate(n, 1).
func (t *Temp) Bytes(n int) ([]byte, error) {
	return t.Allocate(n, 1)
}

// Marker returns the marker captured at construction.
func (t *Temp) Marker() Marker {
	return t.marker
}

// Release unwinds the stack to the captured marker, invalidating every
// allocation made through this handle. It is a no-op on a released or
// moved-from handle, and panics if an inner scope is still open (LIFO
// violation). Release never fails under correct usage.
func (t *Temp) Release() {
	if t == nil || !t.owns {
		return
	}
	t.owns = false
	t.stack.releaseScope(t.marker)
}

// Move transfers the rollback obligation to a new handle. The receiver
// becomes inert: its Release is a no-op and it can no longer allocate.
// Exactly one live handle owns the rollback for a given marker.
func (t *Temp) Move() *Temp {
	t.check()
	t.owns = false
	return &Temp{stack: t.stack, marker: t.marker, owns: true}
}

func (t *Temp) check() {
	if t == nil || t.stack == nil {
		panic("memstack: use of zero-value Temp; obtain handles via Scoped")
	}
	if !t.owns {
		panic("memstack: use of released or moved-from Temp")
	}
}
