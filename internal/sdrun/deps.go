// Package sdrun implements the dependency-order runlist scheduler (spec
// §4.2): runlist_initials, runlist_flows, runlist_stocks, each a
// topologically sorted variable list tie-broken by canonical ident for
// determinism.
package sdrun

import "sdengine/internal/sdast"

// ExtractDeps walks eq and returns every variable ident it references,
// deduplicated. Dimension names inside subscripts are not variable
// references; a Single subscript index that is itself an expression (not a
// constant) may reference variables and is walked too.
func ExtractDeps(eq *sdast.VarEquation) []string {
	if eq == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	add := func(ident string) {
		if !seen[ident] {
			seen[ident] = true
			out = append(out, ident)
		}
	}
	if eq.Expr != nil {
		walkExpr2(eq.Expr, add)
	}
	for _, e := range eq.Elements {
		walkExpr2(e, add)
	}
	return out
}

func walkExpr2(e *sdast.Expr2, add func(string)) {
	if e == nil {
		return
	}
	switch e.Kind {
	case sdast.KindVarRef:
		add(e.Ident)
		for _, idx := range e.Subscript {
			if idx.Kind == sdast.IdxExpr && idx.Expr != nil {
				walkExpr2(idx.Expr, add)
			}
		}
	case sdast.KindOp2:
		walkExpr2(e.Left, add)
		walkExpr2(e.Right, add)
	case sdast.KindOp1:
		walkExpr2(e.Inner, add)
	case sdast.KindIf:
		walkExpr2(e.Cond, add)
		walkExpr2(e.Then, add)
		walkExpr2(e.Else, add)
	case sdast.KindApp:
		for _, a := range e.Args {
			walkExpr2(a, add)
		}
	case sdast.KindModuleInputRef, sdast.KindConst:
		// No inter-variable dependency: a module input slot is bound by the
		// containing model, not referenced by ident here; a constant has no
		// dependency.
	}
}
