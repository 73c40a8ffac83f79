// Package sddim implements the dimension catalog: named and indexed
// dimensions, subdimensions, and dimension-to-dimension mappings (spec §3.2).
package sddim

import (
	"golang.org/x/exp/slices"

	"sdengine/internal/sdident"
	"sdengine/internal/sdlerrors"
)

// Dimension is either Named (explicit element list) or Indexed (implicit
// 1..=Size integer elements).
type Dimension struct {
	Name     sdident.DimName
	Elements []sdident.ElementName // nil for Indexed dimensions
	Size     int                   // len(Elements) for Named; element count for Indexed
	Indexed  bool
}

// Len returns the number of elements along this dimension.
func (d Dimension) Len() int { return d.Size }

// ElementIndex returns the 0-based position of elem within d, or -1.
func (d Dimension) ElementIndex(elem sdident.ElementName) int {
	for i, e := range d.Elements {
		if e == elem {
			return i
		}
	}
	return -1
}

// Subdimension declares a subset of a parent's elements: either a
// contiguous range [Start,End) or an explicit enumeration of parent
// element positions.
type Subdimension struct {
	Name           sdident.DimName
	Parent         sdident.DimName
	ParentOffsets  []int // 0-based positions into the parent's element list
	IsContiguous   bool
}

// Mapping declares that dimension Source maps to dimension Target,
// potentially with element renaming.
type Mapping struct {
	Source      sdident.DimName
	Target      sdident.DimName
	// ElementMap translates an element of Source to the corresponding
	// element of Target. A nil entry means "same name".
	ElementMap map[sdident.ElementName]sdident.ElementName
}

// SubdimRelation is the resolved relationship between a subdimension and
// its parent: the parent element offsets it selects, and whether that
// selection is a contiguous range (enabling simple stride-based slicing)
// or requires explicit-lookup iteration.
type SubdimRelation struct {
	ParentOffsets []int
	IsContiguous  bool
}

// Context resolves dimension names, subdimension relations, and mappings
// for a single project. It is built once at compile time and never mutated
// afterward.
type Context struct {
	dims     map[sdident.DimName]Dimension
	subdims  map[sdident.DimName]Subdimension
	mappings map[sdident.DimName]Mapping // keyed by Source
}

// NewContext builds an empty dimension catalog.
func NewContext() *Context {
	return &Context{
		dims:     make(map[sdident.DimName]Dimension),
		subdims:  make(map[sdident.DimName]Subdimension),
		mappings: make(map[sdident.DimName]Mapping),
	}
}

// AddNamed registers a named dimension. elements must be canonically unique
// within the dimension.
func (c *Context) AddNamed(name sdident.DimName, elements []sdident.ElementName) error {
	seen := make(map[sdident.ElementName]bool, len(elements))
	for _, e := range elements {
		if seen[e] {
			return sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeBadDimensionName,
				"duplicate element %q in dimension %q", e, name)
		}
		seen[e] = true
	}
	c.dims[name] = Dimension{Name: name, Elements: elements, Size: len(elements)}
	return nil
}

// AddIndexed registers an indexed dimension of the given size (elements
// 1..=size, addressed 0-based internally).
func (c *Context) AddIndexed(name sdident.DimName, size int) error {
	if size <= 0 {
		return sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeBadDimensionName,
			"indexed dimension %q must have positive size", name)
	}
	c.dims[name] = Dimension{Name: name, Size: size, Indexed: true}
	return nil
}

// AddSubdimension registers a subdimension relation. Elements of sub are
// resolved to parent offsets at registration time so that
// GetSubdimensionRelation is O(1) thereafter.
func (c *Context) AddSubdimension(name, parent sdident.DimName, elements []sdident.ElementName) error {
	parentDim, ok := c.dims[parent]
	if !ok {
		return sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeBadDimensionName,
			"subdimension %q references unknown parent %q", name, parent)
	}
	offsets := make([]int, 0, len(elements))
	for _, e := range elements {
		idx := parentDim.ElementIndex(e)
		if idx < 0 {
			return sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeBadDimensionName,
				"subdimension %q element %q not found in parent %q", name, e, parent)
		}
		offsets = append(offsets, idx)
	}
	c.subdims[name] = Subdimension{
		Name:          name,
		Parent:        parent,
		ParentOffsets: offsets,
		IsContiguous:  isContiguousRun(offsets),
	}
	c.dims[name] = Dimension{Name: name, Elements: elements, Size: len(elements)}
	return nil
}

func isContiguousRun(offsets []int) bool {
	if len(offsets) == 0 {
		return true
	}
	sorted := append([]int(nil), offsets...)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return false
		}
	}
	return true
}

// AddMapping registers that Source maps to Target.
func (c *Context) AddMapping(m Mapping) {
	c.mappings[m.Source] = m
}

// Get resolves a dimension by canonical name.
func (c *Context) Get(name sdident.DimName) (Dimension, bool) {
	d, ok := c.dims[name]
	return d, ok
}

// GetMapsTo returns the canonical name of the dimension a maps to, if any.
func (c *Context) GetMapsTo(a sdident.DimName) (sdident.DimName, bool) {
	m, ok := c.mappings[a]
	if !ok {
		return "", false
	}
	return m.Target, true
}

// IsSubdimensionOf reports whether sub is a registered subdimension of parent.
func (c *Context) IsSubdimensionOf(sub, parent sdident.DimName) bool {
	s, ok := c.subdims[sub]
	return ok && s.Parent == parent
}

// GetSubdimensionRelation returns the resolved parent-offset relation for a
// subdimension.
func (c *Context) GetSubdimensionRelation(sub sdident.DimName) (SubdimRelation, bool) {
	s, ok := c.subdims[sub]
	if !ok {
		return SubdimRelation{}, false
	}
	return SubdimRelation{ParentOffsets: s.ParentOffsets, IsContiguous: s.IsContiguous}, true
}

// TranslateToSourceViaMapping translates element (an element of target) back
// to the corresponding element of source, given source maps to target.
func (c *Context) TranslateToSourceViaMapping(source, target sdident.DimName, element sdident.ElementName) (sdident.ElementName, bool) {
	m, ok := c.mappings[source]
	if !ok || m.Target != target {
		return "", false
	}
	for src, tgt := range m.ElementMap {
		if tgt == element {
			return src, true
		}
	}
	// No explicit rename: same-name elements map directly.
	if srcDim, ok := c.dims[source]; ok {
		if idx := srcDim.ElementIndex(element); idx >= 0 {
			return element, true
		}
	}
	return "", false
}
