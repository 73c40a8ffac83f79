package sdoffset

import "testing"

func TestAssignStableOrderAndBounds(t *testing.T) {
	m := Assign([]VarSize{
		{Ident: "zeta", Size: 1},
		{Ident: "alpha", Size: 3},
		{Ident: "beta", Size: 1},
	})
	order := m.Order()
	want := []string{"alpha", "beta", "zeta"}
	for i, w := range want {
		if string(order[i]) != w {
			t.Fatalf("order[%d] = %q, want %q", i, order[i], w)
		}
	}
	alpha := m.MustGet("alpha")
	if alpha.Offset != NumGlobals {
		t.Fatalf("alpha offset = %d, want %d", alpha.Offset, NumGlobals)
	}
	beta := m.MustGet("beta")
	if beta.Offset != NumGlobals+3 {
		t.Fatalf("beta offset = %d, want %d", beta.Offset, NumGlobals+3)
	}
	for _, ident := range order {
		e := m.MustGet(ident)
		if e.Offset+e.Size > m.TotalSize() {
			t.Fatalf("entry %+v exceeds slab size %d", e, m.TotalSize())
		}
	}
}

func TestAssignDeterministic(t *testing.T) {
	vars := []VarSize{{Ident: "b", Size: 2}, {Ident: "a", Size: 1}}
	m1 := Assign(vars)
	m2 := Assign(vars)
	for _, id := range m1.Order() {
		if m1.MustGet(id) != m2.MustGet(id) {
			t.Fatalf("re-assignment produced different offsets for %q", id)
		}
	}
}
