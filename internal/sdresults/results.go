// Package sdresults implements the time-series output buffer a Sim writes
// into at each save step, and the cross-run CorrelateColumns helper
// supplemented from original_source/vdf.rs's column-matching concept
// (SPEC_FULL.md §D.4).
package sdresults

import (
	"math"
	"sort"
)

// Results accumulates one row per save step: Time plus every variable's
// value at that step, addressed by slab offset.
type Results struct {
	Times  []float64
	Series map[int][]float64 // slab offset -> one value per row
	Names  map[int]string    // slab offset -> canonical ident, for reporting
}

// New builds an empty Results buffer tracking the given offset->ident pairs.
func New(names map[int]string) *Results {
	return &Results{Series: make(map[int][]float64, len(names)), Names: names}
}

// Record appends one row: the current time and the current value of every
// tracked offset.
func (r *Results) Record(time float64, slab []float64) {
	r.Times = append(r.Times, time)
	for off := range r.Names {
		r.Series[off] = append(r.Series[off], slab[off])
	}
}

// Column returns the recorded series for a slab offset, or nil.
func (r *Results) Column(offset int) []float64 {
	return r.Series[offset]
}

// Len reports how many rows have been recorded.
func (r *Results) Len() int { return len(r.Times) }

// CorrelateColumns reports the Pearson correlation coefficient between two
// recorded series, matched by name. Supplemented from simlin's vdf.rs
// column-matching concept: it compares two runs' same-named output column
// rather than a shared slab offset; rows are paired by index and only the
// first min(len) rows of the two series are compared.
func CorrelateColumns(a, b *Results, name string) (float64, bool) {
	var ca, cb []float64
	for off, n := range a.Names {
		if n == name {
			ca = a.Series[off]
		}
	}
	for off, n := range b.Names {
		if n == name {
			cb = b.Series[off]
		}
	}
	if ca == nil || cb == nil {
		return 0, false
	}
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	if n == 0 {
		return 0, false
	}
	ca, cb = ca[:n], cb[:n]
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += ca[i]
		meanB += cb[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := ca[i]-meanA, cb[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}

// SortedOffsets returns the tracked offsets in ascending order, for
// deterministic column iteration when rendering a report.
func (r *Results) SortedOffsets() []int {
	out := make([]int, 0, len(r.Names))
	for off := range r.Names {
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}
