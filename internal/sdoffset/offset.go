// Package sdoffset assigns the stable, compile-time slab layout (spec §3.4):
// four implicit globals at fixed offsets, then one contiguous block per
// variable in canonical-ident-ascending order. A module variable takes the
// size its caller supplies, like any other variable; its submodel's own
// variables are not laid out in this map.
package sdoffset

import (
	"sort"

	"sdengine/internal/sdident"
)

// Implicit global offsets. These are the only offsets the VM hardcodes.
const (
	Time        = 0
	Dt          = 1
	InitialTime = 2
	FinalTime   = 3
	NumGlobals  = 4
)

// Entry is one variable's slab placement within a model.
type Entry struct {
	Ident  sdident.Canonical
	Offset int
	Size   int
}

// Map is the per-model ident -> placement table.
type Map struct {
	entries map[sdident.Canonical]Entry
	order   []sdident.Canonical // canonical-ident-ascending, matches assignment order
	total   int
}

// VarSize reports how many slab slots a variable occupies: the caller
// supplies size(var) (1 for scalars, product of dims for arrays/modules).
type VarSize struct {
	Ident sdident.Canonical
	Size  int
}

// Assign lays out vars in canonical-ident-ascending order starting right
// after the implicit globals and returns the resulting Map; its TotalSize
// is the slab size including the globals.
func Assign(vars []VarSize) *Map {
	sorted := append([]VarSize(nil), vars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ident < sorted[j].Ident })

	m := &Map{entries: make(map[sdident.Canonical]Entry, len(sorted))}
	offset := NumGlobals
	for _, v := range sorted {
		m.entries[v.Ident] = Entry{Ident: v.Ident, Offset: offset, Size: v.Size}
		m.order = append(m.order, v.Ident)
		offset += v.Size
	}
	m.total = offset
	return m
}

// Get looks up a variable's placement.
func (m *Map) Get(ident sdident.Canonical) (Entry, bool) {
	e, ok := m.entries[ident]
	return e, ok
}

// MustGet panics if ident is not present; used internally once a prior pass
// has already validated every reference resolves.
func (m *Map) MustGet(ident sdident.Canonical) Entry {
	e, ok := m.entries[ident]
	if !ok {
		panic("sdoffset: unknown ident " + string(ident))
	}
	return e
}

// Order returns idents in assignment (canonical-ascending) order.
func (m *Map) Order() []sdident.Canonical { return append([]sdident.Canonical(nil), m.order...) }

// TotalSize is the full slab size for this model, including the 4 globals.
func (m *Map) TotalSize() int { return m.total }
