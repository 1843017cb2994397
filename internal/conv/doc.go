// Package conv provides overflow-checked integer conversions and arithmetic.
package conv
