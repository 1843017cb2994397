package memstack

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memstack/testutil"
)

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func TestStackAllocate(t *testing.T) {
	t.Run("returns requested size", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		b, err := s.Allocate(100, 1)
		require.NoError(t, err)
		assert.Len(t, b, 100)
	})

	t.Run("alignment holds for every power of two", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		rng := testutil.NewRNG(7)
		for i := 0; i < 200; i++ {
			align := rng.Alignment(10) // up to 1024
			size := rng.SizeIn(1, 512)

			b, err := s.Allocate(size, align)
			require.NoError(t, err)
			assert.Zero(t, addrOf(b)%uintptr(align),
				"allocation of %d bytes not aligned to %d", size, align)
		}
	})

	t.Run("allocations never alias", func(t *testing.T) {
		s, err := New(WithBlockSize(1024))
		require.NoError(t, err)
		defer s.Close()

		rng := testutil.NewRNG(11)
		var bufs [][]byte
		for i := 0; i < 64; i++ {
			b, err := s.Allocate(rng.SizeIn(8, 128), rng.Alignment(5))
			require.NoError(t, err)
			testutil.Fill(b, byte(i))
			bufs = append(bufs, b)
		}

		for i, b := range bufs {
			assert.True(t, testutil.CheckFill(b, byte(i)), "allocation %d was overwritten", i)
		}
	})

	t.Run("zero size yields distinct addresses", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		b1, err := s.Allocate(0, 1)
		require.NoError(t, err)
		b2, err := s.Allocate(0, 1)
		require.NoError(t, err)
		assert.NotEqual(t, addrOf(b1), addrOf(b2))
	})

	t.Run("invalid alignment", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		for _, align := range []int{0, -1, 3, 6, 100} {
			_, err := s.Allocate(8, align)
			assert.ErrorIs(t, err, ErrInvalidAlignment, "alignment %d", align)
		}
	})

	t.Run("negative size", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Allocate(-1, 8)
		assert.ErrorIs(t, err, ErrSizeOverflow)
	})
}

func TestStackGrowth(t *testing.T) {
	t.Run("grows on overflow", func(t *testing.T) {
		s, err := New(WithBlockSize(128))
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Allocate(100, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), s.Stats().BlocksAcquired)

		// Does not fit in the remaining 28 bytes.
		b, err := s.Allocate(100, 1)
		require.NoError(t, err)
		assert.Len(t, b, 100)
		assert.Equal(t, uint64(2), s.Stats().BlocksAcquired)
	})

	t.Run("growth factor scales block size", func(t *testing.T) {
		s, err := New(WithBlockSize(128), WithGrowthFactor(2.0))
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Allocate(128, 1)
		require.NoError(t, err)
		_, err = s.Allocate(1, 1)
		require.NoError(t, err)

		assert.Equal(t, 256, s.blocks[len(s.blocks)-1].Cap())
	})

	t.Run("oversized request exceeds max block size", func(t *testing.T) {
		s, err := New(WithBlockSize(64), WithMaxBlockSize(128))
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Allocate(256, 1)
		assert.ErrorIs(t, err, ErrOutOfMemory)

		// Alignment slack counts against the ceiling too.
		_, err = s.Allocate(100, 64)
		assert.ErrorIs(t, err, ErrOutOfMemory)
	})

	t.Run("huge requests fail without wrapping", func(t *testing.T) {
		s, err := New(WithBlockSize(128))
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Allocate(8, 1)
		require.NoError(t, err)

		for _, tc := range []struct{ size, align int }{
			{math.MaxInt, 1},
			{math.MaxInt - 2, 8},
			{math.MaxInt/2 + 1, 2},
			{DefaultMaxBlockSize, 1 << 30},
		} {
			b, err := s.Allocate(tc.size, tc.align)
			assert.ErrorIs(t, err, ErrOutOfMemory, "size %d align %d", tc.size, tc.align)
			assert.Nil(t, b)
		}

		// The stack stays intact and usable.
		assert.GreaterOrEqual(t, s.blocks[len(s.blocks)-1].cursor, 0)
		_, err = s.Allocate(8, 1)
		assert.NoError(t, err)
	})

	t.Run("block count is capped", func(t *testing.T) {
		s, err := New(WithBlockSize(16), WithGrowthFactor(1), WithMaxBlockSize(16), WithMaxBlocks(8))
		require.NoError(t, err)
		defer s.Close()

		for i := 0; i < 8; i++ {
			_, err := s.Allocate(16, 1)
			require.NoError(t, err)
		}

		_, err = s.Allocate(16, 1)
		assert.ErrorIs(t, err, ErrOutOfMemory)
	})
}

func TestStackMarkerUnwind(t *testing.T) {
	t.Run("unwind restores the frontier", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		m := s.Marker()
		_, err = s.Allocate(512, 8)
		require.NoError(t, err)
		assert.NotZero(t, s.LiveBytes())

		s.Unwind(m)
		assert.Equal(t, m, s.Marker())
		assert.Zero(t, s.LiveBytes())
	})

	t.Run("reallocation after unwind reuses the same address", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Allocate(64, 8)
		require.NoError(t, err)

		m := s.Marker()
		p1, err := s.Allocate(128, 16)
		require.NoError(t, err)

		s.Unwind(m)

		p2, err := s.Allocate(128, 16)
		require.NoError(t, err)
		assert.Equal(t, addrOf(p1), addrOf(p2))
	})

	t.Run("unwind across blocks retains them as spares", func(t *testing.T) {
		s, err := New(WithBlockSize(128))
		require.NoError(t, err)
		defer s.Close()

		m := s.Marker()
		_, err = s.Allocate(100, 1)
		require.NoError(t, err)
		_, err = s.Allocate(100, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(2), s.Stats().BlocksAcquired)

		s.Unwind(m)
		assert.Len(t, s.spare, 1)
		assert.Zero(t, s.Stats().BlocksReleased)

		// The spare is large enough, so no new block is acquired.
		_, err = s.Allocate(200, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), s.Stats().BlocksAcquired)
	})

	t.Run("nested markers unwind in any released order", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		m1 := s.Marker()
		_, err = s.Allocate(64, 8)
		require.NoError(t, err)

		m2 := s.Marker()
		_, err = s.Allocate(64, 8)
		require.NoError(t, err)

		// Unwinding straight to the outer marker discards both allocations.
		s.Unwind(m1)
		assert.Equal(t, m1, s.Marker())
		assert.True(t, m1.before(m2))
	})

	t.Run("panics on foreign marker", func(t *testing.T) {
		s1, err := New()
		require.NoError(t, err)
		defer s1.Close()
		s2, err := New()
		require.NoError(t, err)
		defer s2.Close()

		m := s1.Marker()
		assert.Panics(t, func() { s2.Unwind(m) })
	})

	t.Run("panics on marker beyond the frontier", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		defer s.Close()

		m0 := s.Marker()
		_, err = s.Allocate(64, 8)
		require.NoError(t, err)
		stale := s.Marker()

		s.Unwind(m0)
		assert.Panics(t, func() { s.Unwind(stale) })
	})

	t.Run("panics when unwinding past an open scope", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		m0 := s.Marker()
		_, err = s.Allocate(64, 8)
		require.NoError(t, err)

		tmp := Scoped(s)
		assert.Panics(t, func() { s.Unwind(m0) })
		tmp.Release()
		s.Unwind(m0)
		require.NoError(t, s.Close())
	})
}

func TestStackTrim(t *testing.T) {
	s, err := New(WithBlockSize(128))
	require.NoError(t, err)
	defer s.Close()

	m := s.Marker()
	_, err = s.Allocate(100, 1)
	require.NoError(t, err)
	_, err = s.Allocate(100, 1)
	require.NoError(t, err)

	reserved := s.Stats().BytesReserved
	s.Unwind(m)
	assert.Equal(t, reserved, s.Stats().BytesReserved, "unwind alone must not release memory")

	require.NoError(t, s.Trim())
	assert.Equal(t, uint64(1), s.Stats().BlocksReleased)
	assert.Equal(t, uint64(128), s.Stats().BytesReserved)

	// Nothing left to trim.
	require.NoError(t, s.Trim())
	assert.Equal(t, uint64(1), s.Stats().BlocksReleased)
}

func TestStackReset(t *testing.T) {
	t.Run("drops every allocation and spare", func(t *testing.T) {
		s, err := New(WithBlockSize(128))
		require.NoError(t, err)
		defer s.Close()

		for i := 0; i < 8; i++ {
			_, err := s.Allocate(100, 1)
			require.NoError(t, err)
		}

		require.NoError(t, s.Reset())
		assert.Zero(t, s.LiveBytes())
		assert.Len(t, s.blocks, 1)
		assert.Empty(t, s.spare)
	})

	t.Run("panics with open scopes", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		tmp := Scoped(s)
		assert.Panics(t, func() { _ = s.Reset() })
		tmp.Release()
		require.NoError(t, s.Close())
	})
}

func TestStackClose(t *testing.T) {
	s, err := New(WithBlockSize(128))
	require.NoError(t, err)

	_, err = s.Allocate(100, 1)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Zero(t, s.Stats().BytesReserved)

	_, err = s.Allocate(8, 8)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Trim(), ErrClosed)
	assert.ErrorIs(t, s.Reset(), ErrClosed)
	assert.Zero(t, s.CapacityRemaining())
	assert.NotPanics(t, func() { s.Unwind(s.Marker()) })

	// Idempotent.
	require.NoError(t, s.Close())
}

func TestStackCapacityRemaining(t *testing.T) {
	s, err := New(WithBlockSize(1024))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1024, s.CapacityRemaining())

	_, err = s.Allocate(100, 1)
	require.NoError(t, err)
	assert.Equal(t, 924, s.CapacityRemaining())
}

func TestStackStats(t *testing.T) {
	s, err := New(WithBlockSize(1024))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Allocate(100, 1)
	require.NoError(t, err)
	_, err = s.Allocate(100, 1)
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.TotalAllocs)
	assert.Equal(t, uint64(200), stats.TotalBytes)
	assert.Equal(t, uint64(1024), stats.BytesReserved)

	m := s.Marker()
	_, err = s.Allocate(100, 1)
	require.NoError(t, err)
	s.Unwind(m)
	assert.Equal(t, uint64(1), s.Stats().Unwinds)
}

func TestStackMetrics(t *testing.T) {
	collector := &BasicMetricsCollector{}

	s, err := New(WithBlockSize(128), WithMetricsCollector(collector))
	require.NoError(t, err)
	defer s.Close()

	m := s.Marker()
	_, err = s.Allocate(100, 1)
	require.NoError(t, err)
	_, err = s.Allocate(100, 1)
	require.NoError(t, err)
	_, err = s.Allocate(8, 3)
	require.Error(t, err)

	s.Unwind(m)
	require.NoError(t, s.Trim())

	snap := collector.Snapshot()
	assert.Equal(t, uint64(2), snap.Allocs)
	assert.Equal(t, uint64(1), snap.AllocFailures)
	assert.Equal(t, uint64(200), snap.BytesRequested)
	assert.Equal(t, uint64(2), snap.Grows)
	assert.Equal(t, uint64(1), snap.Unwinds)
	assert.Equal(t, uint64(200), snap.BytesReclaimed)
	assert.Equal(t, uint64(1), snap.Trims)
	assert.Equal(t, uint64(256), snap.BytesTrimmed)
}

func TestStackString(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Allocate(100, 1)
	require.NoError(t, err)

	assert.Contains(t, s.String(), "blocks: 1")
	assert.Contains(t, s.String(), "allocs: 1")
}
