// Package sddata defines the declarative project datamodel (spec §3.3,
// §6.1): models, variables (stock/flow/aux/module/graphical), dimensions,
// units, and sim specs. This is the frozen input the compiler consumes;
// nothing downstream of compilation holds a reference back into it
// (spec §3.7).
package sddata

import "sdengine/internal/sdast"

// IntegrationMethod selects the driver's integrator (spec §4.7, §6.1).
type IntegrationMethod string

const (
	MethodEuler IntegrationMethod = "Euler"
	MethodRK4   IntegrationMethod = "RK4"
)

// Dt is a time-step magnitude, optionally expressed as a reciprocal (e.g.
// "4 steps per time unit" rather than "0.25 time units per step").
type Dt struct {
	Value       float64 `json:"value" yaml:"value"`
	IsReciprocal bool   `json:"isReciprocal" yaml:"isReciprocal"`
}

// Resolve returns the Dt's value in absolute time units.
func (d Dt) Resolve() float64 {
	if d.IsReciprocal && d.Value != 0 {
		return 1.0 / d.Value
	}
	return d.Value
}

// SimSpecs holds the simulation time window and integrator choice.
type SimSpecs struct {
	Start     float64           `json:"start" yaml:"start"`
	Stop      float64           `json:"stop" yaml:"stop"`
	Dt        Dt                `json:"dt" yaml:"dt"`
	SaveStep  *Dt               `json:"saveStep,omitempty" yaml:"saveStep,omitempty"`
	Method    IntegrationMethod `json:"method" yaml:"method"`
	TimeUnits string            `json:"timeUnits" yaml:"timeUnits"`
}

// EffectiveSaveStep returns SaveStep if set, else Dt.
func (s SimSpecs) EffectiveSaveStep() float64 {
	if s.SaveStep != nil {
		return s.SaveStep.Resolve()
	}
	return s.Dt.Resolve()
}

// DimensionKind discriminates Named vs Indexed dimensions (spec §3.2).
type DimensionKind string

const (
	DimNamed   DimensionKind = "named"
	DimIndexed DimensionKind = "indexed"
)

// Dimension is the datamodel's declarative dimension shape.
type Dimension struct {
	Name     string        `json:"name" yaml:"name"`
	Kind     DimensionKind `json:"kind" yaml:"kind"`
	Elements []string      `json:"elements,omitempty" yaml:"elements,omitempty"` // DimNamed
	Size     int           `json:"size,omitempty" yaml:"size,omitempty"`         // DimIndexed
}

// Subdimension is a declared subset of a parent dimension's elements.
type Subdimension struct {
	Name     string   `json:"name" yaml:"name"`
	Parent   string   `json:"parent" yaml:"parent"`
	Elements []string `json:"elements" yaml:"elements"`
}

// DimensionMapping declares that Source maps to Target.
type DimensionMapping struct {
	Source     string            `json:"source" yaml:"source"`
	Target     string            `json:"target" yaml:"target"`
	ElementMap map[string]string `json:"elementMap,omitempty" yaml:"elementMap,omitempty"`
}

// GraphicalFunction is a 1-D piecewise-linear lookup table.
type GraphicalFunction struct {
	X []float64 `json:"x" yaml:"x"`
	Y []float64 `json:"y" yaml:"y"`
	// Extrapolate selects the out-of-range policy. The default ("") is
	// clamp; a source format that specifies linear extrapolation may set
	// this to "extrapolate" (spec §9 open question — exposed as a per-table
	// flag rather than guessed at globally).
	Extrapolate string `json:"extrapolate,omitempty" yaml:"extrapolate,omitempty"`
}

// VarKind discriminates the tagged union of variables (spec §3.3).
type VarKind string

const (
	KindStock    VarKind = "stock"
	KindFlow     VarKind = "flow"
	KindAux      VarKind = "aux"
	KindModule   VarKind = "module"
)

// ModuleInputBinding binds a containing model's variable to a submodel's
// input name.
type ModuleInputBinding struct {
	Src string `json:"src" yaml:"src"`
	Dst string `json:"dst" yaml:"dst"`
}

// Variable is the tagged union: Stock | Flow/Aux ("Var") | Module.
type Variable struct {
	Ident string  `json:"ident" yaml:"ident"`
	Kind  VarKind `json:"kind" yaml:"kind"`

	// Declared array dimensions, if any (nil for scalar variables).
	Dims []string `json:"dims,omitempty" yaml:"dims,omitempty"`

	// Stock
	Init      *sdast.VarEquation `json:"init,omitempty" yaml:"init,omitempty"`
	Inflows   []string           `json:"inflows,omitempty" yaml:"inflows,omitempty"`
	Outflows  []string           `json:"outflows,omitempty" yaml:"outflows,omitempty"`
	NonNegative bool             `json:"nonNegative,omitempty" yaml:"nonNegative,omitempty"`

	// Flow / Aux
	Equation    *sdast.VarEquation `json:"equation,omitempty" yaml:"equation,omitempty"`
	InitEq      *sdast.VarEquation `json:"initEq,omitempty" yaml:"initEq,omitempty"`
	Table       *GraphicalFunction `json:"table,omitempty" yaml:"table,omitempty"`
	IsFlow      bool               `json:"isFlow,omitempty" yaml:"isFlow,omitempty"`
	IsTableOnly bool               `json:"isTableOnly,omitempty" yaml:"isTableOnly,omitempty"`

	// Module
	ModelName string               `json:"modelName,omitempty" yaml:"modelName,omitempty"`
	Inputs    []ModuleInputBinding `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// HasErrors is set by an external type-checking pass (out of scope,
	// spec §1); the compiler rejects a model where any variable carries
	// errors (spec §6.1).
	HasErrors bool `json:"hasErrors,omitempty" yaml:"hasErrors,omitempty"`
}

// Model is one stock/flow model within a project.
type Model struct {
	Name      string     `json:"name" yaml:"name"`
	SimSpecs  *SimSpecs  `json:"simSpecs,omitempty" yaml:"simSpecs,omitempty"`
	Variables []Variable `json:"variables" yaml:"variables"`
}

// Unit is a unit declaration. Unit-consistency *checking* is out of scope
// (spec §1); the datamodel only carries the declaration through so it can
// round-trip.
type Unit struct {
	Name       string   `json:"name" yaml:"name"`
	Equation   string   `json:"equation,omitempty" yaml:"equation,omitempty"`
	Aliases    []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Project is the top-level datamodel the compiler consumes.
type Project struct {
	Name          string             `json:"name" yaml:"name"`
	SimSpecs      SimSpecs           `json:"simSpecs" yaml:"simSpecs"`
	Models        []Model            `json:"models" yaml:"models"`
	Dimensions    []Dimension        `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Subdimensions []Subdimension     `json:"subdimensions,omitempty" yaml:"subdimensions,omitempty"`
	Mappings      []DimensionMapping `json:"mappings,omitempty" yaml:"mappings,omitempty"`
	Units         []Unit             `json:"units,omitempty" yaml:"units,omitempty"`
}

// ModelByName returns the named model, or nil.
func (p *Project) ModelByName(name string) *Model {
	for i := range p.Models {
		if p.Models[i].Name == name {
			return &p.Models[i]
		}
	}
	return nil
}
