package sdview

import "testing"

func TestContiguousStrides(t *testing.T) {
	v := Contiguous([]int{3, 2}, []string{"A", "B"})
	if v.Strides[0] != 2 || v.Strides[1] != 1 {
		t.Fatalf("unexpected strides: %v", v.Strides)
	}
	if !v.IsContiguous() {
		t.Fatal("expected contiguous view")
	}
}

func TestSliceAdjustsOffset(t *testing.T) {
	v := Contiguous([]int{4}, []string{"X"})
	s := v.Slice(0, 1, 3)
	if s.Offset != 1 || s.Dims[0] != 2 {
		t.Fatalf("unexpected slice result: %+v", s)
	}
}

func TestTransposeReverses(t *testing.T) {
	v := Contiguous([]int{3, 2}, []string{"A", "B"})
	tr := v.Transpose()
	if tr.Dims[0] != 2 || tr.Dims[1] != 3 {
		t.Fatalf("unexpected dims after transpose: %v", tr.Dims)
	}
	if tr.DimNames[0] != "B" || tr.DimNames[1] != "A" {
		t.Fatalf("unexpected dim names after transpose: %v", tr.DimNames)
	}
}

func TestIteratorRowMajor(t *testing.T) {
	v := Contiguous([]int{2, 2}, []string{"A", "B"})
	it := NewIterator(v)
	var offs []int
	for it.Next() {
		offs = append(offs, it.Offset())
	}
	want := []int{0, 1, 2, 3}
	if len(offs) != len(want) {
		t.Fatalf("got %v, want %v", offs, want)
	}
	for i := range want {
		if offs[i] != want[i] {
			t.Fatalf("got %v, want %v", offs, want)
		}
	}
}

func TestIteratorWithSparse(t *testing.T) {
	v := Contiguous([]int{4}, []string{"A"})
	sv := v.ApplySparse(0, []int{0, 2})
	it := NewIterator(sv)
	var offs []int
	for it.Next() {
		offs = append(offs, it.Offset())
	}
	if len(offs) != 2 || offs[0] != 0 || offs[1] != 2 {
		t.Fatalf("unexpected sparse offsets: %v", offs)
	}
}

func TestFindDimensionReordering(t *testing.T) {
	perm, ok := FindDimensionReordering([]string{"X", "Y"}, []string{"Y", "X"})
	if !ok || perm[0] != 1 || perm[1] != 0 {
		t.Fatalf("unexpected perm: %v ok=%v", perm, ok)
	}
	_, ok = FindDimensionReordering([]string{"X", "Y"}, []string{"X", "Z"})
	if ok {
		t.Fatal("expected reordering to fail for non-permutation")
	}
}

func TestReorderAppliesToStridesAndNames(t *testing.T) {
	v := Contiguous([]int{2, 3}, []string{"X", "Y"})
	perm, _ := FindDimensionReordering([]string{"X", "Y"}, []string{"Y", "X"})
	r := v.Reorder(perm)
	if r.Dims[0] != 3 || r.Dims[1] != 2 {
		t.Fatalf("unexpected reordered dims: %v", r.Dims)
	}
	if r.DimNames[0] != "Y" || r.DimNames[1] != "X" {
		t.Fatalf("unexpected reordered names: %v", r.DimNames)
	}
}
