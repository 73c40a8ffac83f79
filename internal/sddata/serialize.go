package sddata

import (
	"encoding/json"

	"sdengine/internal/sdast"
	"sdengine/internal/sdlerrors"
)

// MarshalNativeJSON serializes p in the native JSON format: camelCase
// fields mirroring the struct tags 1:1, with struct-field and
// lexicographically-sorted-map-key ordering giving deterministic byte
// output (spec §8: "Serialize -> Open -> Serialize yields byte-identical
// output").
func MarshalNativeJSON(p *Project) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// UnmarshalNativeJSON parses the native JSON format produced by
// MarshalNativeJSON.
func UnmarshalNativeJSON(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, sdlerrors.Wrap(err, sdlerrors.KindModel, sdlerrors.CodeGeneric, "invalid native JSON project")
	}
	return &p, nil
}

// SDAIVariable is one entry of the flat SDAI JSON variable list.
type SDAIVariable struct {
	Type        string               `json:"type"`
	Name        string               `json:"name"`
	Model       string               `json:"model,omitempty"` // defaults to the project's sole/root model
	Dims        []string             `json:"dims,omitempty"`
	Equation    *sdast.VarEquation   `json:"equation,omitempty"`
	Init        *sdast.VarEquation   `json:"init,omitempty"`
	Inflows     []string             `json:"inflows,omitempty"`
	Outflows    []string             `json:"outflows,omitempty"`
	NonNegative bool                 `json:"nonNegative,omitempty"`
	Table       *GraphicalFunction   `json:"table,omitempty"`
	IsFlow      bool                 `json:"isFlow,omitempty"`
	IsTableOnly bool                 `json:"isTableOnly,omitempty"`
	ModelName   string               `json:"modelName,omitempty"`
	Inputs      []ModuleInputBinding `json:"inputs,omitempty"`
}

// SDAIDocument is the flat SDAI JSON shape: one variable list plus specs,
// with no per-model nesting. The core normalizes it to the nested
// model-per-project shape before compilation (spec §6.1).
type SDAIDocument struct {
	Name       string             `json:"name,omitempty"`
	Specs      SimSpecs           `json:"specs"`
	Variables  []SDAIVariable     `json:"variables"`
	Dimensions []Dimension        `json:"dimensions,omitempty"`
	Mappings   []DimensionMapping `json:"mappings,omitempty"`
}

// UnmarshalSDAIJSON parses the flat SDAI shape and normalizes it into a
// nested Project. Variables with no explicit Model are assigned to the
// project's root model (named after the project, or "main" if unnamed).
func UnmarshalSDAIJSON(data []byte) (*Project, error) {
	var doc SDAIDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, sdlerrors.Wrap(err, sdlerrors.KindModel, sdlerrors.CodeGeneric, "invalid SDAI JSON project")
	}
	return NormalizeSDAI(&doc), nil
}

// NormalizeSDAI converts a flat SDAI document into the nested
// model-per-project datamodel shape.
func NormalizeSDAI(doc *SDAIDocument) *Project {
	rootName := doc.Name
	if rootName == "" {
		rootName = "main"
	}

	byModel := make(map[string][]Variable)
	order := []string{}
	for _, v := range doc.Variables {
		model := v.Model
		if model == "" {
			model = rootName
		}
		if _, ok := byModel[model]; !ok {
			order = append(order, model)
		}
		byModel[model] = append(byModel[model], sdaiToVariable(v))
	}
	if len(order) == 0 {
		order = []string{rootName}
	}

	p := &Project{
		Name:       doc.Name,
		SimSpecs:   doc.Specs,
		Dimensions: doc.Dimensions,
		Mappings:   doc.Mappings,
	}
	for _, name := range order {
		p.Models = append(p.Models, Model{Name: name, Variables: byModel[name]})
	}
	return p
}

func sdaiToVariable(v SDAIVariable) Variable {
	kind := VarKind(v.Type)
	out := Variable{
		Ident:       v.Name,
		Kind:        kind,
		Dims:        v.Dims,
		Init:        v.Init,
		Inflows:     v.Inflows,
		Outflows:    v.Outflows,
		NonNegative: v.NonNegative,
		Equation:    v.Equation,
		Table:       v.Table,
		IsFlow:      v.IsFlow || kind == KindFlow,
		IsTableOnly: v.IsTableOnly,
		ModelName:   v.ModelName,
		Inputs:      v.Inputs,
	}
	return out
}

// ToSDAI flattens a nested Project into the SDAI document shape, the
// inverse of NormalizeSDAI (modulo model grouping, which SDAI's flat shape
// preserves via each variable's Model field).
func ToSDAI(p *Project) *SDAIDocument {
	doc := &SDAIDocument{
		Name:       p.Name,
		Specs:      p.SimSpecs,
		Dimensions: p.Dimensions,
		Mappings:   p.Mappings,
	}
	for _, m := range p.Models {
		for _, v := range m.Variables {
			doc.Variables = append(doc.Variables, SDAIVariable{
				Type:        string(v.Kind),
				Name:        v.Ident,
				Model:       m.Name,
				Dims:        v.Dims,
				Equation:    v.Equation,
				Init:        v.Init,
				Inflows:     v.Inflows,
				Outflows:    v.Outflows,
				NonNegative: v.NonNegative,
				Table:       v.Table,
				IsFlow:      v.IsFlow,
				IsTableOnly: v.IsTableOnly,
				ModelName:   v.ModelName,
				Inputs:      v.Inputs,
			})
		}
	}
	return doc
}
