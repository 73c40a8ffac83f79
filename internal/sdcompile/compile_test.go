package sdcompile

import (
	"testing"

	"sdengine/internal/sdast"
	"sdengine/internal/sddata"
	"sdengine/internal/sdvm"
)

func scalarEq(ident string) *sdast.VarEquation {
	return &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindVarRef, Ident: ident}}
}

func constEq(v float64) *sdast.VarEquation {
	return &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindConst, Const: v}}
}

func TestCompileExponentialGrowth(t *testing.T) {
	project := &sddata.Project{
		Name: "growth",
		SimSpecs: sddata.SimSpecs{Start: 0, Stop: 10, Dt: sddata.Dt{Value: 0.25}, Method: sddata.MethodEuler},
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

	cp, errs := Compile(project)
	for _, e := range errs {
		t.Fatalf("unexpected compile error: %v", e)
	}
	model := cp.ModelByName("main")
	if model == nil {
		t.Fatal("model not compiled")
	}

	popEntry, ok := model.Offsets.Get("population")
	if !ok {
		t.Fatal("population not assigned an offset")
	}
	birthsEntry, ok := model.Offsets.Get("births")
	if !ok {
		t.Fatal("births not assigned an offset")
	}

	slab := make([]float64, model.Offsets.TotalSize())
	slab[1] = 0.25 // dt

	frame := &sdvm.Frame{Curr: slab}
	initProg := model.Module.Programs["population.init"]
	if initProg == nil {
		t.Fatal("no init program for population")
	}
	if _, err := sdvm.Run(initProg, model.Module, frame, nil); err != nil {
		t.Fatal(err)
	}
	if slab[popEntry.Offset] != 100 {
		t.Fatalf("population init = %v, want 100", slab[popEntry.Offset])
	}

	birthsProg := model.Module.Programs["births"]
	if birthsProg == nil {
		t.Fatal("no program for births")
	}
	if _, err := sdvm.Run(birthsProg, model.Module, frame, nil); err != nil {
		t.Fatal(err)
	}
	if slab[birthsEntry.Offset] != 10 {
		t.Fatalf("births = %v, want 10", slab[birthsEntry.Offset])
	}

	netProg := model.Module.Programs["population.net"]
	if netProg == nil {
		t.Fatal("no net-flow program for population")
	}
	net, err := sdvm.Run(netProg, model.Module, frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	if net != 10 {
		t.Fatalf("net flow = %v, want 10", net)
	}
	if len(model.Runlists.Flows) != 1 || model.Runlists.Flows[0] != "births" {
		t.Fatalf("unexpected flows runlist: %v", model.Runlists.Flows)
	}
	if len(model.Runlists.Stocks) != 1 || model.Runlists.Stocks[0] != "population" {
		t.Fatalf("unexpected stocks runlist: %v", model.Runlists.Stocks)
	}
}
