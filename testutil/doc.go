// Package testutil provides deterministic helpers for allocator tests:
// a seeded thread-safe RNG for sizes and alignments, and pattern fills
// for overlap detection.
package testutil
