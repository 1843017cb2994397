// Package governor enforces resource budgets for block sources.
//
// A Controller tracks memory reserved by block acquisitions against a hard
// limit, bounds the number of concurrent background reclaim workers, and
// throttles the rate at which trimmed blocks are returned to the source.
// A nil *Controller is valid and enforces nothing.
package governor
