package sdrun

import (
	"testing"

	"sdengine/internal/sdast"
	"sdengine/internal/sddata"
)

func scalarEq(ident string) *sdast.VarEquation {
	return &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindVarRef, Ident: ident}}
}

func constEq(v float64) *sdast.VarEquation {
	return &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindConst, Const: v}}
}

func TestBuildExponentialGrowth(t *testing.T) {
	// stock p, init 100; flow b = p * 0.1
	vars := []sddata.Variable{
		{
			Ident: "p", Kind: sddata.KindStock,
			Init:     constEq(100),
			Inflows:  []string{"b"},
		},
		{
			Ident: "b", Kind: sddata.KindFlow, IsFlow: true,
			Equation: &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{
				Kind: sdast.KindOp2, Op2: sdast.OpMul,
				Left:  &sdast.Expr2{Kind: sdast.KindVarRef, Ident: "p"},
				Right: &sdast.Expr2{Kind: sdast.KindConst, Const: 0.1},
			}},
		},
	}
	rl, err := Build(vars)
	if err != nil {
		t.Fatal(err)
	}
	if len(rl.Flows) != 1 || rl.Flows[0] != "b" {
		t.Fatalf("unexpected flows runlist: %v", rl.Flows)
	}
	if len(rl.Stocks) != 1 || rl.Stocks[0] != "p" {
		t.Fatalf("unexpected stocks runlist: %v", rl.Stocks)
	}
	// initials: p has no deps (const init), so p must appear; b depends on p.
	if len(rl.Initials) != 2 {
		t.Fatalf("unexpected initials runlist: %v", rl.Initials)
	}
	pIdx, bIdx := -1, -1
	for i, id := range rl.Initials {
		if id == "p" {
			pIdx = i
		}
		if id == "b" {
			bIdx = i
		}
	}
	if pIdx < 0 || bIdx < 0 || pIdx > bIdx {
		t.Fatalf("expected p before b in initials, got %v", rl.Initials)
	}
}

func TestStockMediatedCycleIsNotFatal(t *testing.T) {
	// aux depends on stock; stock's inflow references aux: legal topology.
	vars := []sddata.Variable{
		{Ident: "s", Kind: sddata.KindStock, Init: constEq(0), Inflows: []string{"f"}},
		{Ident: "aux", Kind: sddata.KindAux, Equation: scalarEq("s")},
		{Ident: "f", Kind: sddata.KindFlow, IsFlow: true, Equation: scalarEq("aux")},
	}
	if _, err := Build(vars); err != nil {
		t.Fatalf("expected stock-mediated cycle to be legal, got %v", err)
	}
}

func TestNonStockCycleIsFatal(t *testing.T) {
	vars := []sddata.Variable{
		{Ident: "a", Kind: sddata.KindAux, Equation: scalarEq("b")},
		{Ident: "b", Kind: sddata.KindAux, Equation: scalarEq("a")},
	}
	if _, err := Build(vars); err == nil {
		t.Fatal("expected circular dependency error")
	}
}
