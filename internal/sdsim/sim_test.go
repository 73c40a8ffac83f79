package sdsim

import (
	"math"
	"testing"

	"sdengine/internal/sdast"
	"sdengine/internal/sdcompile"
	"sdengine/internal/sddata"
)

func scalarConst(v float64) *sdast.VarEquation {
	return &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindConst, Const: v}}
}

func growthProject(birthRate float64, asAux bool) *sddata.Project {
	vars := []sddata.Variable{
		{Ident: "population", Kind: sddata.KindStock, Init: scalarConst(100), Inflows: []string{"births"}},
	}
	if asAux {
		vars = append(vars,
			sddata.Variable{Ident: "birth_rate", Kind: sddata.KindAux, Equation: scalarConst(birthRate)},
			sddata.Variable{Ident: "births", Kind: sddata.KindFlow, IsFlow: true, Equation: &sdast.VarEquation{
				Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{
					Kind: sdast.KindOp2, Op2: sdast.OpMul,
					Left:  &sdast.Expr2{Kind: sdast.KindVarRef, Ident: "population"},
					Right: &sdast.Expr2{Kind: sdast.KindVarRef, Ident: "birth_rate"},
				},
			}},
		)
	} else {
		vars = append(vars, sddata.Variable{Ident: "births", Kind: sddata.KindFlow, IsFlow: true, Equation: &sdast.VarEquation{
			Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{
				Kind: sdast.KindOp2, Op2: sdast.OpMul,
				Left:  &sdast.Expr2{Kind: sdast.KindVarRef, Ident: "population"},
				Right: &sdast.Expr2{Kind: sdast.KindConst, Const: birthRate},
			},
		}})
	}
	return &sddata.Project{
		Name:     "growth",
		SimSpecs: sddata.SimSpecs{Start: 0, Stop: 10, Dt: sddata.Dt{Value: 0.25}, Method: sddata.MethodEuler},
		Models:   []sddata.Model{{Name: "main", Variables: vars}},
	}
}

func mustCompile(t *testing.T, project *sddata.Project) *sdcompile.CompiledProject {
	t.Helper()
	cp, errs := sdcompile.Compile(project)
	for _, e := range errs {
		t.Fatalf("unexpected compile error: %v", e)
	}
	return cp
}

func TestSimExponentialGrowth(t *testing.T) {
	cp := mustCompile(t, growthProject(0.1, false))
	model := cp.ModelByName("main")
	sim := New(cp, model, false)

	if err := sim.RunInitials(); err != nil {
		t.Fatal(err)
	}
	if v, _ := sim.GetValue("population"); v != 100 {
		t.Fatalf("population at t=0 = %v, want 100", v)
	}
	if err := sim.RunTo(1); err != nil {
		t.Fatal(err)
	}
	want := 100 * math.Pow(1+0.1*0.25, 4)
	got, _ := sim.GetValue("population")
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("population at t=1 = %v, want %v", got, want)
	}

	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}
	if sim.Phase() != Completed {
		t.Fatalf("phase = %v, want Completed", sim.Phase())
	}
	if err := sim.SetValue("population", 1); err == nil {
		t.Fatal("expected set_value to fail after Completed")
	}
}

func TestSimDeterministicRerun(t *testing.T) {
	cp := mustCompile(t, growthProject(0.1, false))
	model := cp.ModelByName("main")
	sim := New(cp, model, false)

	run := func() []float64 {
		if err := sim.RunInitials(); err != nil {
			t.Fatal(err)
		}
		if err := sim.RunToEnd(); err != nil {
			t.Fatal(err)
		}
		series, err := sim.GetSeries("population")
		if err != nil {
			t.Fatal(err)
		}
		return append([]float64(nil), series...)
	}

	first := run()
	sim.Reset()
	second := run()

	if len(first) != len(second) || len(first) == 0 {
		t.Fatalf("series length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("reset+rerun diverged at step %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestSimOverrideSurvivesReset(t *testing.T) {
	cp := mustCompile(t, growthProject(0.1, true))
	model := cp.ModelByName("main")
	sim := New(cp, model, false)

	if err := sim.SetOverride("birth_rate", 0.2); err != nil {
		t.Fatal(err)
	}
	sim.Reset()
	if err := sim.RunInitials(); err != nil {
		t.Fatal(err)
	}
	if v, _ := sim.GetValue("birth_rate"); v != 0.2 {
		t.Fatalf("birth_rate after override+reset+run_initials = %v, want 0.2", v)
	}

	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}
	overriddenFinal, _ := sim.GetValue("population")

	baseline := New(cp, model, false)
	if err := baseline.RunInitials(); err != nil {
		t.Fatal(err)
	}
	if err := baseline.RunToEnd(); err != nil {
		t.Fatal(err)
	}
	baselineFinal, _ := baseline.GetValue("population")

	if overriddenFinal <= baselineFinal {
		t.Fatalf("overridden final population %v should exceed baseline %v", overriddenFinal, baselineFinal)
	}
}

func TestSimSetOverrideRejectsUnknownVariable(t *testing.T) {
	cp := mustCompile(t, growthProject(0.1, true))
	model := cp.ModelByName("main")
	sim := New(cp, model, false)

	if err := sim.SetOverride("not_a_variable", 5); err == nil {
		t.Fatal("expected SetOverride on an unknown ident to fail")
	}
}

func TestSimPartialRunThenSetValue(t *testing.T) {
	cp := mustCompile(t, growthProject(0.1, false))
	model := cp.ModelByName("main")
	sim := New(cp, model, false)

	if err := sim.RunInitials(); err != nil {
		t.Fatal(err)
	}
	if err := sim.RunTo(0.5); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetValue("population", 42); err != nil {
		t.Fatal(err)
	}
	if v, _ := sim.GetValue("population"); v != 42 {
		t.Fatalf("population after set_value = %v, want 42", v)
	}
	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetValue("population", 1); err == nil {
		t.Fatal("expected set_value to fail after Completed")
	}
}
