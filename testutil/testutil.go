package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// SizeIn returns a pseudo-random allocation size in [minSize, maxSize].
func (r *RNG) SizeIn(minSize, maxSize int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return minSize + r.rand.Intn(maxSize-minSize+1)
}

// Alignment returns a pseudo-random power-of-two alignment in
// [1, 1<<maxExp].
func (r *RNG) Alignment(maxExp int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return 1 << r.rand.Intn(maxExp+1)
}

// Fill writes a repeating tag pattern into dst. Combined with CheckFill it
// detects allocations that alias each other's memory.
func Fill(dst []byte, tag byte) {
	for i := range dst {
		dst[i] = tag ^ byte(i)
	}
}

// CheckFill reports whether dst still carries the pattern written by Fill.
func CheckFill(dst []byte, tag byte) bool {
	for i := range dst {
		if dst[i] != tag^byte(i) {
			return false
		}
	}
	return true
}
