package sdvm

import (
	"testing"

	"sdengine/internal/sdbc"
	"sdengine/internal/sdir"
	"sdengine/internal/sdview"
)

// newModule mirrors what sdcompile does per model: one shared
// pool for lookup tables and module declarations across all of a model's
// compiled variables.
func newModule() *sdbc.Module {
	return &sdbc.Module{Programs: map[string]*sdbc.Program{}}
}

func TestExponentialGrowthFlow(t *testing.T) {
	// b = p * 0.1, with p at slab offset 4 (right after the 4 globals).
	root := sdir.AssignCurr(5, sdir.BinOp(sdir.OpMul, sdir.Var(4), sdir.ConstExpr(0.1)))
	m := newModule()
	prog, err := sdbc.Compile(m, root)
	if err != nil {
		t.Fatal(err)
	}
	frame := &Frame{Curr: []float64{0, 0.25, 0, 100, 100, 0}}
	if _, err := Run(prog, m, frame, nil); err != nil {
		t.Fatal(err)
	}
	if got := frame.Curr[5]; got != 10 {
		t.Fatalf("b = %v, want 10", got)
	}
}

func TestStockIntegrationStep(t *testing.T) {
	// next(p) = p + dt * b, with p at offset 4, b at offset 5.
	root := sdir.AssignNext(4, sdir.BinOp(sdir.OpAdd,
		sdir.Var(4),
		sdir.BinOp(sdir.OpMul, sdir.DtExpr(), sdir.Var(5))))
	m := newModule()
	prog, err := sdbc.Compile(m, root)
	if err != nil {
		t.Fatal(err)
	}
	frame := &Frame{
		Curr: []float64{0, 0.25, 0, 100, 100, 10},
		Next: make([]float64, 6),
	}
	if _, err := Run(prog, m, frame, nil); err != nil {
		t.Fatal(err)
	}
	if got := frame.Next[4]; got != 102.5 {
		t.Fatalf("next(p) = %v, want 102.5", got)
	}
}

func TestDynamicSubscript(t *testing.T) {
	// a[x] where x is a dynamic 1-based index held at offset 4, the array
	// a starts at offset 5 with stride 1, bound 3; x == 2 selects a[1]
	// (0-based) == a's second slot.
	root := sdir.AssignCurr(8, sdir.Subscript(5, []sdir.SubscriptIndex{
		{Index: sdir.Var(4), Stride: 1, Bound: 3},
	}))
	m := newModule()
	prog, err := sdbc.Compile(m, root)
	if err != nil {
		t.Fatal(err)
	}
	frame := &Frame{Curr: []float64{0, 0.25, 0, 100, 2, 10, 20, 30, 0}}
	if _, err := Run(prog, m, frame, nil); err != nil {
		t.Fatal(err)
	}
	if got := frame.Curr[8]; got != 20 {
		t.Fatalf("a[x] = %v, want 20", got)
	}
}

func TestArraySumReduction(t *testing.T) {
	// total = SUM(a[*]) where a occupies three contiguous slots starting
	// at offset 4.
	view := sdview.Contiguous([]int{3}, []string{"region"})
	arrExpr := sdir.ArrayExpr(sdir.StaticSubscript(4, view), view)
	root := sdir.AssignCurr(7, sdir.App(sdir.BFSum, arrExpr))
	m := newModule()
	prog, err := sdbc.Compile(m, root)
	if err != nil {
		t.Fatal(err)
	}
	frame := &Frame{Curr: []float64{0, 0.25, 0, 100, 1, 2, 3, 0}}
	if _, err := Run(prog, m, frame, nil); err != nil {
		t.Fatal(err)
	}
	if got := frame.Curr[7]; got != 6 {
		t.Fatalf("total = %v, want 6", got)
	}
}

func TestLookupTable(t *testing.T) {
	root := sdir.AssignCurr(5, sdir.AppLookup(sdir.Var(4), []float64{0, 1, 2}, []float64{0, 10, 40}, false))
	m := newModule()
	prog, err := sdbc.Compile(m, root)
	if err != nil {
		t.Fatal(err)
	}
	frame := &Frame{Curr: []float64{0, 0.25, 0, 100, 1.5, 0}}
	if _, err := Run(prog, m, frame, nil); err != nil {
		t.Fatal(err)
	}
	if got := frame.Curr[5]; got != 25 {
		t.Fatalf("lookup(1.5) = %v, want 25", got)
	}
}

func TestEvalModuleDelegation(t *testing.T) {
	root := sdir.AssignCurr(5, sdir.EvalModule("pop_module", "population", []*sdir.Expr{sdir.Var(4)}, []string{"in"}))
	m := newModule()
	prog, err := sdbc.Compile(m, root)
	if err != nil {
		t.Fatal(err)
	}
	frame := &Frame{Curr: []float64{0, 0.25, 0, 100, 7, 0}}
	called := false
	eval := func(decl sdbc.ModuleDecl, inputs []float64, simTime float64) (float64, error) {
		called = true
		if decl.ModelName != "population" || len(inputs) != 1 || inputs[0] != 7 || simTime != 0 {
			t.Fatalf("unexpected module invocation: %+v %v @%v", decl, inputs, simTime)
		}
		return 42, nil
	}
	v, err := Run(prog, m, frame, eval)
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("module evaluator was not invoked")
	}
	if frame.Curr[5] != 42 || v != 42 {
		t.Fatalf("result = %v, slab = %v, want 42", v, frame.Curr[5])
	}
}
