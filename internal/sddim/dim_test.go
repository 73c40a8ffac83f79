package sddim

import (
	"testing"

	"sdengine/internal/sdident"
)

func TestNamedDimension(t *testing.T) {
	c := NewContext()
	if err := c.AddNamed("letters", []sdident.ElementName{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	d, ok := c.Get("letters")
	if !ok || d.Len() != 3 {
		t.Fatalf("expected 3-element dimension, got %+v", d)
	}
	if d.ElementIndex("b") != 1 {
		t.Fatalf("expected index 1 for b, got %d", d.ElementIndex("b"))
	}
}

func TestDuplicateElementRejected(t *testing.T) {
	c := NewContext()
	if err := c.AddNamed("dup", []sdident.ElementName{"a", "a"}); err == nil {
		t.Fatal("expected error for duplicate element")
	}
}

func TestSubdimensionContiguous(t *testing.T) {
	c := NewContext()
	_ = c.AddNamed("region", []sdident.ElementName{"north", "south", "east", "west"})
	if err := c.AddSubdimension("coast", "region", []sdident.ElementName{"south", "east"}); err != nil {
		t.Fatal(err)
	}
	rel, ok := c.GetSubdimensionRelation("coast")
	if !ok || !rel.IsContiguous {
		t.Fatalf("expected contiguous relation, got %+v", rel)
	}
	if len(rel.ParentOffsets) != 2 || rel.ParentOffsets[0] != 1 || rel.ParentOffsets[1] != 2 {
		t.Fatalf("unexpected parent offsets: %v", rel.ParentOffsets)
	}
}

func TestSubdimensionSparse(t *testing.T) {
	c := NewContext()
	_ = c.AddNamed("region", []sdident.ElementName{"north", "south", "east", "west"})
	if err := c.AddSubdimension("ns", "region", []sdident.ElementName{"north", "west"}); err != nil {
		t.Fatal(err)
	}
	rel, _ := c.GetSubdimensionRelation("ns")
	if rel.IsContiguous {
		t.Fatalf("expected non-contiguous relation, got %+v", rel)
	}
}

func TestMappingTranslation(t *testing.T) {
	c := NewContext()
	_ = c.AddNamed("a", []sdident.ElementName{"x", "y"})
	_ = c.AddNamed("b", []sdident.ElementName{"x", "y"})
	c.AddMapping(Mapping{Source: "a", Target: "b", ElementMap: map[sdident.ElementName]sdident.ElementName{}})
	target, ok := c.GetMapsTo("a")
	if !ok || target != "b" {
		t.Fatalf("expected a maps to b, got %v %v", target, ok)
	}
	src, ok := c.TranslateToSourceViaMapping("a", "b", "x")
	if !ok || src != "x" {
		t.Fatalf("expected same-name translation, got %v %v", src, ok)
	}
}
