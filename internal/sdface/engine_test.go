package sdface

import (
	"encoding/json"
	"testing"

	"sdengine/internal/sdast"
	"sdengine/internal/sddata"
)

func constEq(v float64) *sdast.VarEquation {
	return &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindConst, Const: v}}
}

func growthProjectJSON(t *testing.T) []byte {
	t.Helper()
	project := sddata.Project{
		Name:     "growth",
		SimSpecs: sddata.SimSpecs{Start: 0, Stop: 4, Dt: sddata.Dt{Value: 0.25}, Method: sddata.MethodEuler},
		Models: []sddata.Model{{
			Name: "main",
			Variables: []sddata.Variable{
				{Ident: "population", Kind: sddata.KindStock, Init: constEq(100), Inflows: []string{"births"}},
				{Ident: "births", Kind: sddata.KindFlow, IsFlow: true, Equation: &sdast.VarEquation{
					Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{
						Kind: sdast.KindOp2, Op2: sdast.OpMul,
						Left:  &sdast.Expr2{Kind: sdast.KindVarRef, Ident: "population"},
						Right: &sdast.Expr2{Kind: sdast.KindConst, Const: 0.1},
					},
				}},
			},
		}},
	}
	data, err := json.Marshal(project)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestEngineOpenProjectAndRunSim(t *testing.T) {
	e := New()
	projectID, err := e.OpenProject(growthProjectJSON(t), sddata.FormatNativeJSON)
	if err != nil {
		t.Fatal(err)
	}
	if errs, _ := e.Errors(projectID); len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}

	modelID, err := e.GetModel(projectID, "main")
	if err != nil {
		t.Fatal(err)
	}
	simID, err := e.NewSim(modelID, false)
	if err != nil {
		t.Fatal(err)
	}
	sim, err := e.Sim(simID)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.RunInitials(); err != nil {
		t.Fatal(err)
	}
	if v, _ := sim.GetValue("population"); v != 100 {
		t.Fatalf("population at t=0 = %v, want 100", v)
	}
	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}
}

func TestEnginePatchAtomicity(t *testing.T) {
	e := New()
	projectID, err := e.OpenProject(growthProjectJSON(t), sddata.FormatNativeJSON)
	if err != nil {
		t.Fatal(err)
	}

	good := PatchOp{Op: "upsertAux", Variable: &sddata.Variable{
		Ident: "good", Kind: sddata.KindAux, Equation: constEq(1),
	}}
	bad := PatchOp{Op: "upsertAux", Variable: &sddata.Variable{
		Ident: "bad", Kind: sddata.KindAux, Equation: &sdast.VarEquation{
			Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindVarRef, Ident: "does_not_exist"},
		},
	}}

	err = e.ApplyPatch(projectID, Patch{Models: []ModelPatch{{Name: "main", Ops: []PatchOp{good, bad}}}})
	if err == nil {
		t.Fatal("expected patch with an invalid op to fail")
	}

	data, err := e.Serialize(projectID, sddata.FormatNativeJSON)
	if err != nil {
		t.Fatal(err)
	}
	var project sddata.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatal(err)
	}
	model := project.ModelByName("main")
	for _, v := range model.Variables {
		if v.Ident == "good" || v.Ident == "bad" {
			t.Fatalf("patch partially applied: found variable %q after a rejected patch", v.Ident)
		}
	}
}

func TestEngineNoOpPatchLeavesProjectUnchanged(t *testing.T) {
	e := New()
	raw := growthProjectJSON(t)
	projectID, err := e.OpenProject(raw, sddata.FormatNativeJSON)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyPatch(projectID, Patch{}); err != nil {
		t.Fatal(err)
	}
	data, err := e.Serialize(projectID, sddata.FormatNativeJSON)
	if err != nil {
		t.Fatal(err)
	}
	var before, after sddata.Project
	json.Unmarshal(raw, &before)
	json.Unmarshal(data, &after)
	if len(before.Models[0].Variables) != len(after.Models[0].Variables) {
		t.Fatalf("no-op patch changed variable count: %d vs %d", len(before.Models[0].Variables), len(after.Models[0].Variables))
	}
}

func TestEngineDryRunDoesNotMutate(t *testing.T) {
	e := New()
	projectID, err := e.OpenProject(growthProjectJSON(t), sddata.FormatNativeJSON)
	if err != nil {
		t.Fatal(err)
	}
	patch := Patch{
		DryRun: true,
		Models: []ModelPatch{{Name: "main", Ops: []PatchOp{{
			Op: "upsertAux", Variable: &sddata.Variable{Ident: "new_aux", Kind: sddata.KindAux, Equation: constEq(1)},
		}}}},
	}
	if err := e.ApplyPatch(projectID, patch); err != nil {
		t.Fatal(err)
	}
	modelID, err := e.GetModel(projectID, "main")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.NewSim(modelID, false); err != nil {
		t.Fatal(err)
	}
	data, _ := e.Serialize(projectID, sddata.FormatNativeJSON)
	var project sddata.Project
	json.Unmarshal(data, &project)
	for _, v := range project.ModelByName("main").Variables {
		if v.Ident == "new_aux" {
			t.Fatal("dry_run patch mutated the project")
		}
	}
}
