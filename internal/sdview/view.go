// Package sdview implements ArrayView: a possibly-strided, possibly-sliced,
// possibly-transposed window into the f64 slab (spec §3.5).
package sdview

// SparseDim records that the given output dimension index draws its
// elements from non-contiguous parent offsets, disabling stride-based
// iteration for that axis.
type SparseDim struct {
	DimIndex      int
	ParentOffsets []int
}

// View describes a window into the slab relative to some variable's base
// offset.
type View struct {
	Dims     []int
	Strides  []int
	Offset   int
	Sparse   []SparseDim
	DimNames []string
}

// Contiguous builds a row-major view over shape with offset 0: the natural
// layout of a freshly allocated array variable.
func Contiguous(shape []int, dimNames []string) View {
	dims := append([]int(nil), shape...)
	strides := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= dims[i]
	}
	names := append([]string(nil), dimNames...)
	return View{Dims: dims, Strides: strides, DimNames: names}
}

// Size returns the product of Dims (the number of elements the view
// iterates, ignoring sparse lookups — those still iterate one element per
// combination).
func (v View) Size() int {
	n := 1
	for _, d := range v.Dims {
		n *= d
	}
	return n
}

// IsContiguous reports whether this view is a plain row-major window with
// offset 0 and no sparse axes — the condition under which a view-based
// access can be collapsed to a single contiguous LoadVar range.
func (v View) IsContiguous() bool {
	if v.Offset != 0 || len(v.Sparse) != 0 {
		return false
	}
	want := Contiguous(v.Dims, v.DimNames)
	if len(v.Strides) != len(want.Strides) {
		return false
	}
	for i := range v.Strides {
		if v.Strides[i] != want.Strides[i] {
			return false
		}
	}
	return true
}

// sparseFor returns the SparseDim entry for dim, if any.
func (v View) sparseFor(dim int) (SparseDim, bool) {
	for _, s := range v.Sparse {
		if s.DimIndex == dim {
			return s, true
		}
	}
	return SparseDim{}, false
}

// Slice narrows dimension dim to the half-open range [start,end): it
// reduces Dims[dim] to end-start and folds start*Strides[dim] into Offset.
// Strides are left unchanged (still valid for the narrower range).
func (v View) Slice(dim, start, end int) View {
	out := v.clone()
	out.Offset += start * v.Strides[dim]
	out.Dims[dim] = end - start
	return out
}

// Transpose reverses Dims, Strides, and DimNames.
func (v View) Transpose() View {
	out := v.clone()
	reverseInts(out.Dims)
	reverseInts(out.Strides)
	reverseStrings(out.DimNames)
	// Sparse dim indices must be remapped under reversal.
	n := len(out.Dims)
	for i := range out.Sparse {
		out.Sparse[i].DimIndex = n - 1 - out.Sparse[i].DimIndex
	}
	return out
}

// Reorder permutes Dims, Strides, and DimNames by perm: output axis i takes
// its shape/stride/name from input axis perm[i].
func (v View) Reorder(perm []int) View {
	out := View{
		Offset: v.Offset,
		Dims:   make([]int, len(perm)),
		Strides: make([]int, len(perm)),
		DimNames: make([]string, len(perm)),
	}
	inverse := make([]int, len(perm))
	for i, p := range perm {
		out.Dims[i] = v.Dims[p]
		out.Strides[i] = v.Strides[p]
		if p < len(v.DimNames) {
			out.DimNames[i] = v.DimNames[p]
		}
		inverse[p] = i
	}
	for _, s := range v.Sparse {
		out.Sparse = append(out.Sparse, SparseDim{DimIndex: inverse[s.DimIndex], ParentOffsets: s.ParentOffsets})
	}
	return out
}

// ApplySparse marks dimension dim as drawing its elements from the given
// non-contiguous parent offsets (from a *:Subdim selection), replacing its
// stride-based iteration with explicit lookup.
func (v View) ApplySparse(dim int, parentOffsets []int) View {
	out := v.clone()
	out.Dims[dim] = len(parentOffsets)
	filtered := out.Sparse[:0]
	for _, s := range out.Sparse {
		if s.DimIndex != dim {
			filtered = append(filtered, s)
		}
	}
	out.Sparse = append(filtered, SparseDim{DimIndex: dim, ParentOffsets: append([]int(nil), parentOffsets...)})
	return out
}

func (v View) clone() View {
	return View{
		Dims:     append([]int(nil), v.Dims...),
		Strides:  append([]int(nil), v.Strides...),
		Offset:   v.Offset,
		Sparse:   append([]SparseDim(nil), v.Sparse...),
		DimNames: append([]string(nil), v.DimNames...),
	}
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseStrings(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Iterator walks every element of a view in row-major order over its
// *output* shape, yielding the flat slab offset (relative to the variable's
// base) for each.
type Iterator struct {
	v       View
	idx     []int
	done    bool
	started bool
}

// NewIterator builds an iterator over v.
func NewIterator(v View) *Iterator {
	return &Iterator{v: v, idx: make([]int, len(v.Dims))}
}

// Next advances the iterator and reports whether a value is available. Call
// Offset to read the current element's slab offset.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if !it.started {
		it.started = true
		if it.v.Size() == 0 {
			it.done = true
			return false
		}
		return true
	}
	for i := len(it.idx) - 1; i >= 0; i-- {
		it.idx[i]++
		if it.idx[i] < it.v.Dims[i] {
			return true
		}
		it.idx[i] = 0
	}
	it.done = true
	return false
}

// Offset returns the flat slab offset (relative to the view's owning
// variable's base offset) of the current element.
func (it *Iterator) Offset() int {
	off := it.v.Offset
	for i, ix := range it.idx {
		if sd, ok := it.v.sparseFor(i); ok {
			off += sd.ParentOffsets[ix] * it.v.Strides[i]
			continue
		}
		off += ix * it.v.Strides[i]
	}
	return off
}

// OffsetAt returns the flat slab offset (relative to the view's owning
// variable's base offset) of the element at the given per-axis indices,
// without needing a live Iterator. Used by the array tree-walker to
// address an arbitrary position directly.
func (v View) OffsetAt(idx []int) int {
	off := v.Offset
	for i, ix := range idx {
		if sd, ok := v.sparseFor(i); ok {
			off += sd.ParentOffsets[ix] * v.Strides[i]
			continue
		}
		off += ix * v.Strides[i]
	}
	return off
}

// Indices returns a copy of the current per-axis indices (for builtins that
// need positional information, e.g. building a reduction's output view).
func (it *Iterator) Indices() []int {
	return append([]int(nil), it.idx...)
}

// FindDimensionReordering reports the permutation perm such that
// to[i] == from[perm[i]] for every i, when from and to are permutations of
// the same dimension-name multiset. ok is false when they are not
// permutations of each other (different lengths or names).
func FindDimensionReordering(from, to []string) (perm []int, ok bool) {
	if len(from) != len(to) {
		return nil, false
	}
	used := make([]bool, len(from))
	perm = make([]int, len(to))
	for i, name := range to {
		found := -1
		for j, cand := range from {
			if !used[j] && cand == name {
				found = j
				used[j] = true
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		perm[i] = found
	}
	return perm, true
}
