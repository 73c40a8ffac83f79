package sdcompile

import (
	"sdengine/internal/sdast"
	"sdengine/internal/sdident"
	"sdengine/internal/sdir"
	"sdengine/internal/sdlerrors"
	"sdengine/internal/sdoffset"
	"sdengine/internal/sdview"
)

// builtinByName maps a surface-syntax function name (already
// canonicalized) to its IR builtin. "min"/"max" are resolved at call-site
// by argument count/shape, not here.
var builtinByName = map[string]sdir.Builtin{
	"abs": sdir.BFAbs, "sign": sdir.BFSign, "sqrt": sdir.BFSqrt,
	"exp": sdir.BFExp, "ln": sdir.BFLn, "log10": sdir.BFLog10,
	"sin": sdir.BFSin, "cos": sdir.BFCos, "tan": sdir.BFTan,
	"arcsin": sdir.BFArcsin, "arccos": sdir.BFArccos, "arctan": sdir.BFArctan,
	"int": sdir.BFInt,
	"sum": sdir.BFSum, "mean": sdir.BFMean, "stddev": sdir.BFStddev, "size": sdir.BFSize,
	"step": sdir.BFStep, "pulse": sdir.BFPulse, "ramp": sdir.BFRamp, "safediv": sdir.BFSafediv,
	"time": sdir.BFTime, "time_step": sdir.BFTimeStep,
	"initial_time": sdir.BFInitialTime, "final_time": sdir.BFFinalTime,
	"pi": sdir.BFPi, "inf": sdir.BFInf,
	"is_module_input": sdir.BFIsModuleInput,
}

var reductionBuiltins = map[string]bool{"sum": true, "mean": true, "stddev": true, "size": true}

// lowerScalar lowers e to a scalar sdir.Expr. activeDims/activeIdx describe
// the apply-to-all position currently being expanded (nil outside of
// element expansion); they let a bare reference to a same-shaped array
// variable resolve to "this position" instead of requiring an explicit
// subscript.
func (lc *lowerCtx) lowerScalar(e *sdast.Expr2, activeDims []string, activeIdx []int) (*sdir.Expr, error) {
	if e == nil {
		return sdir.ConstExpr(0), nil
	}
	switch e.Kind {
	case sdast.KindConst:
		return sdir.ConstExpr(e.Const), nil

	case sdast.KindModuleInputRef:
		// Resolved by the containing model's module-input binding; the
		// offset within the submodel's own input frame is assigned in
		// declaration order, matched by name at invocation time (spec §5).
		return sdir.ModuleInput(0), nil

	case sdast.KindVarRef:
		return lc.lowerVarRef(e, activeDims, activeIdx)

	case sdast.KindOp2:
		l, err := lc.lowerScalar(e.Left, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		r, err := lc.lowerScalar(e.Right, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		return sdir.BinOp(sdir.BinaryOp(e.Op2), l, r), nil

	case sdast.KindOp1:
		if e.Op1 == sdast.OpTranspose {
			return nil, sdlerrors.Variable(sdlerrors.CodeArraysNotImplemented,
				"transpose is only valid as a reduction builtin's argument")
		}
		in, err := lc.lowerScalar(e.Inner, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		return sdir.UnOp(sdir.UnaryOp(e.Op1), in), nil

	case sdast.KindIf:
		cond, err := lc.lowerScalar(e.Cond, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		then, err := lc.lowerScalar(e.Then, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		els, err := lc.lowerScalar(e.Else, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		return sdir.IfExpr(cond, then, els), nil

	case sdast.KindApp:
		return lc.lowerApp(e, activeDims, activeIdx)
	}
	return nil, sdlerrors.Variable(sdlerrors.CodeGeneric, "unhandled expression kind %d", e.Kind)
}

func (lc *lowerCtx) lowerApp(e *sdast.Expr2, activeDims []string, activeIdx []int) (*sdir.Expr, error) {
	name := sdident.Canonicalize(e.Fn)

	if name == "lookup" {
		if len(e.Args) != 2 || e.Args[0].Kind != sdast.KindVarRef {
			return nil, sdlerrors.Variable(sdlerrors.CodeBadBuiltinArgs, "lookup(table_var, x) expects a variable and an x expression")
		}
		tident := sdident.Ident(e.Args[0].Ident)
		gf, ok := lc.tables[tident]
		if !ok {
			return nil, sdlerrors.Variable(sdlerrors.CodeBadTable, "variable %q has no graphical function", e.Args[0].Ident)
		}
		x, err := lc.lowerScalar(e.Args[1], activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		return sdir.AppLookup(x, gf.X, gf.Y, gf.Extrapolate != ""), nil
	}

	if name == "is_module_input" {
		if len(e.Args) != 1 || e.Args[0].Kind != sdast.KindVarRef {
			return nil, sdlerrors.Variable(sdlerrors.CodeBadBuiltinArgs, "is_module_input(name) expects a single variable name")
		}
		if lc.isModuleInputIdent(e.Args[0].Ident) {
			return sdir.ConstExpr(1), nil
		}
		return sdir.ConstExpr(0), nil
	}

	if name == "min" || name == "max" {
		if len(e.Args) == 1 && isArrayShaped(e.Args[0], lc, activeDims) {
			arr, err := lc.lowerArrayArg(e.Args[0], activeDims, activeIdx)
			if err != nil {
				return nil, err
			}
			fn := sdir.BFMinArray
			if name == "max" {
				fn = sdir.BFMaxArray
			}
			return sdir.App(fn, arr), nil
		}
		args := make([]*sdir.Expr, len(e.Args))
		for i, a := range e.Args {
			v, err := lc.lowerScalar(a, activeDims, activeIdx)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		fn := sdir.BFMinScalar
		if name == "max" {
			fn = sdir.BFMaxScalar
		}
		return sdir.App(fn, args...), nil
	}

	if reductionBuiltins[name] {
		if len(e.Args) != 1 {
			return nil, sdlerrors.Variable(sdlerrors.CodeBadBuiltinArgs, "%s expects exactly one array argument", name)
		}
		arr, err := lc.lowerArrayArg(e.Args[0], activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		return sdir.App(builtinByName[name], arr), nil
	}

	fn, ok := builtinByName[name]
	if !ok {
		return nil, sdlerrors.Variable(sdlerrors.CodeBadBuiltinArgs, "unknown builtin %q", e.Fn)
	}
	args := make([]*sdir.Expr, len(e.Args))
	for i, a := range e.Args {
		v, err := lc.lowerScalar(a, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return sdir.App(fn, args...), nil
}

// isArrayShaped reports whether e denotes an array value rather than a
// scalar one, in the given active context.
func isArrayShaped(e *sdast.Expr2, lc *lowerCtx, activeDims []string) bool {
	if e.Kind != sdast.KindVarRef {
		return false
	}
	dims := lc.varDims[sdident.Ident(e.Ident)]
	if len(dims) == 0 {
		return false
	}
	if e.Subscript == nil {
		return true
	}
	for _, idx := range e.Subscript {
		if idx.Kind == sdast.IdxRange || idx.Kind == sdast.IdxWildcard || idx.Kind == sdast.IdxSparseRange {
			return true
		}
	}
	return false
}

// lowerVarRef resolves a VarRef to a scalar sdir.Expr: a bare scalar
// variable, a same-position element of an array variable referenced
// bare inside matching apply-to-all expansion, or an explicit
// [subscript]-qualified access (static, dynamic, or a mix of both).
func (lc *lowerCtx) lowerVarRef(e *sdast.Expr2, activeDims []string, activeIdx []int) (*sdir.Expr, error) {
	switch sdident.Canonicalize(e.Ident) {
	case "time":
		return sdir.Var(sdoffset.Time), nil
	case "dt":
		return sdir.DtExpr(), nil
	case "initial_time":
		return sdir.Var(sdoffset.InitialTime), nil
	case "final_time":
		return sdir.Var(sdoffset.FinalTime), nil
	}

	ident := sdident.Ident(e.Ident)
	entry, ok := lc.offsets.Get(ident)
	if !ok {
		return nil, sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown variable %q", e.Ident)
	}
	dimNames := dimNameStrs(lc.varDims[ident])

	if len(dimNames) == 0 {
		return sdir.Var(entry.Offset), nil
	}

	if e.Subscript == nil {
		if activeIdx == nil {
			return nil, sdlerrors.Variable(sdlerrors.CodeArrayReferenceNeedsExplicitSubscript,
				"array variable %q referenced without a subscript", e.Ident)
		}
		off, err := lc.sameShapeOffset(dimNames, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		return sdir.Var(entry.Offset + off), nil
	}

	sizes := lc.dimSizes(lc.varDims[ident])
	strides := sdview.Contiguous(sizes, dimNames).Strides
	base := entry.Offset
	var dynIndices []sdir.SubscriptIndex
	for i, sub := range e.Subscript {
		if i >= len(strides) {
			break
		}
		switch sub.Kind {
		case sdast.IdxSingle:
			base += sub.Single * strides[i]
		case sdast.IdxWildcard, sdast.IdxDimPosition, sdast.IdxActiveDimRef:
			concrete, err := lc.resolveActivePosition(sub, dimNames[i], activeDims, activeIdx)
			if err != nil {
				return nil, err
			}
			base += concrete * strides[i]
		case sdast.IdxRange, sdast.IdxSparseRange:
			return nil, sdlerrors.Variable(sdlerrors.CodeTodoRange,
				"ranged subscript on %q is only supported as a reduction builtin's argument", e.Ident)
		case sdast.IdxExpr:
			dyn, err := lc.lowerScalar(sub.Expr, activeDims, activeIdx)
			if err != nil {
				return nil, err
			}
			dynIndices = append(dynIndices, sdir.SubscriptIndex{Index: dyn, Stride: strides[i], Bound: sizes[i]})
		}
	}
	if len(dynIndices) == 0 {
		return sdir.Var(base), nil
	}
	return sdir.Subscript(base, dynIndices), nil
}

// sameShapeOffset computes the flat offset into targetDims implied by the
// current apply-to-all position, matching axes by dimension name.
func (lc *lowerCtx) sameShapeOffset(targetDims, activeDims []string, activeIdx []int) (int, error) {
	sizes := make([]int, len(targetDims))
	for i, d := range targetDims {
		if dim, ok := lc.dims.Get(sdident.Dim(d)); ok {
			sizes[i] = dim.Size
		} else {
			sizes[i] = 1
		}
	}
	strides := sdview.Contiguous(sizes, targetDims).Strides
	off := 0
	for i, d := range targetDims {
		j := indexOf(activeDims, d)
		if j < 0 || j >= len(activeIdx) {
			return 0, sdlerrors.Variable(sdlerrors.CodeMismatchedDimensions,
				"dimension %q not active in this context", d)
		}
		off += activeIdx[j] * strides[i]
	}
	return off, nil
}

func (lc *lowerCtx) resolveActivePosition(sub sdast.IndexExpr2, dimName string, activeDims []string, activeIdx []int) (int, error) {
	switch sub.Kind {
	case sdast.IdxDimPosition:
		if sub.Position < 0 || sub.Position >= len(activeIdx) {
			return 0, sdlerrors.Variable(sdlerrors.CodeMismatchedDimensions, "@%d out of range", sub.Position)
		}
		return activeIdx[sub.Position], nil
	case sdast.IdxActiveDimRef:
		j := indexOf(activeDims, sub.DimName)
		if j < 0 {
			return 0, sdlerrors.Variable(sdlerrors.CodeMismatchedDimensions, "dimension %q not active", sub.DimName)
		}
		return activeIdx[j], nil
	default: // IdxWildcard: keep this axis's own current position
		j := indexOf(activeDims, dimName)
		if j < 0 {
			return 0, sdlerrors.Variable(sdlerrors.CodeMismatchedDimensions, "wildcard on %q outside its own apply-to-all context", dimName)
		}
		return activeIdx[j], nil
	}
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

// lowerArrayArg lowers e into an sdir.ArrayExpr: a (view, inner-expr) pair
// the VM's array tree-walker can iterate. Supported shapes: a bare or
// ranged/wildcarded VarRef, and an elementwise Op2/Transpose composition of
// two such references.
func (lc *lowerCtx) lowerArrayArg(e *sdast.Expr2, activeDims []string, activeIdx []int) (*sdir.Expr, error) {
	switch e.Kind {
	case sdast.KindVarRef:
		return lc.lowerArrayVarRef(e)
	case sdast.KindOp1:
		if e.Op1 != sdast.OpTranspose {
			return nil, sdlerrors.Variable(sdlerrors.CodeArraysNotImplemented, "unary op not valid in array context")
		}
		inner, err := lc.lowerArrayArg(e.Inner, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		return sdir.ArrayExpr(sdir.UnOp(sdir.OpTranspose, inner.Inner), inner.View.Transpose()), nil
	case sdast.KindOp2:
		l, err := lc.lowerArrayArg(e.Left, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		r, err := lc.lowerArrayArg(e.Right, activeDims, activeIdx)
		if err != nil {
			return nil, err
		}
		rInner := r.Inner
		if !equalDimNames(l.View.DimNames, r.View.DimNames) {
			perm, ok := sdview.FindDimensionReordering(r.View.DimNames, l.View.DimNames)
			if !ok {
				return nil, sdlerrors.Variable(sdlerrors.CodeMismatchedDimensions,
					"array operands have incompatible dimensions: %v vs %v", l.View.DimNames, r.View.DimNames)
			}
			rInner, err = reorderArrayInner(rInner, perm)
			if err != nil {
				return nil, err
			}
		}
		return sdir.ArrayExpr(sdir.BinOp(sdir.BinaryOp(e.Op2), l.Inner, rInner), l.View), nil
	}
	return nil, sdlerrors.Variable(sdlerrors.CodeArraysNotImplemented, "expression not valid as an array-builtin argument")
}

// isModuleInputIdent reports whether name names a variable in the current
// model whose equation is a bare module-input placeholder (spec §4.4's
// is_module_input is resolved here, at compile time, rather than against a
// runtime frame: a submodel's set of bound inputs is fixed by its datamodel,
// not by which invocation is currently executing).
func (lc *lowerCtx) isModuleInputIdent(name string) bool {
	target := sdident.Ident(name)
	for _, v := range lc.model.Variables {
		if sdident.Ident(v.Ident) != target {
			continue
		}
		return v.Equation != nil && v.Equation.Expr != nil && v.Equation.Expr.Kind == sdast.KindModuleInputRef
	}
	return false
}

func equalDimNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// reorderArrayInner rewrites every subscripting leaf under e so it reads
// perm-permuted indices instead of its own natural dimension order,
// aligning e onto another operand's axis order (spec §4.3.6). perm comes
// from sdview.FindDimensionReordering(e's dim names, target dim names).
func reorderArrayInner(e *sdir.Expr, perm []int) (*sdir.Expr, error) {
	switch e.Kind {
	case sdir.KindStaticSubscript:
		return sdir.StaticSubscript(e.Offset, e.View.Reorder(perm)), nil
	case sdir.KindOp2:
		l, err := reorderArrayInner(e.Left, perm)
		if err != nil {
			return nil, err
		}
		r, err := reorderArrayInner(e.Right, perm)
		if err != nil {
			return nil, err
		}
		return sdir.BinOp(e.Op2, l, r), nil
	}
	return nil, sdlerrors.Variable(sdlerrors.CodeArraysNotImplemented,
		"dimension reordering is only supported for subscripted variables and their elementwise combinations")
}

func (lc *lowerCtx) lowerArrayVarRef(e *sdast.Expr2) (*sdir.Expr, error) {
	ident := sdident.Ident(e.Ident)
	entry, ok := lc.offsets.Get(ident)
	if !ok {
		return nil, sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown variable %q", e.Ident)
	}
	dimNames := dimNameStrs(lc.varDims[ident])
	sizes := lc.dimSizes(lc.varDims[ident])
	full := sdview.Contiguous(sizes, dimNames)

	if e.Subscript == nil {
		return sdir.ArrayExpr(sdir.StaticSubscript(entry.Offset, full), full), nil
	}

	// fixedOffset accumulates the contribution of every axis resolved to a
	// single concrete index (IdxSingle); free axes (Wildcard/Range/
	// SparseRange) keep their natural stride and are projected into the
	// output view below, in subscript order.
	fixedOffset := 0
	projected := sdview.View{}
	for i, sub := range e.Subscript {
		if i >= len(full.Dims) {
			break
		}
		switch sub.Kind {
		case sdast.IdxSingle:
			fixedOffset += sub.Single * full.Strides[i]
		case sdast.IdxWildcard:
			projected.Dims = append(projected.Dims, full.Dims[i])
			projected.Strides = append(projected.Strides, full.Strides[i])
			projected.DimNames = append(projected.DimNames, dimNames[i])
		case sdast.IdxSparseRange:
			rel, ok := lc.dims.GetSubdimensionRelation(sdident.Dim(sub.Subdim))
			if !ok {
				return nil, sdlerrors.Variable(sdlerrors.CodeBadDimensionName, "unknown subdimension %q", sub.Subdim)
			}
			projected.Sparse = append(projected.Sparse, sdview.SparseDim{
				DimIndex: len(projected.Dims), ParentOffsets: rel.ParentOffsets,
			})
			projected.Dims = append(projected.Dims, len(rel.ParentOffsets))
			projected.Strides = append(projected.Strides, full.Strides[i])
			projected.DimNames = append(projected.DimNames, dimNames[i])
		case sdast.IdxRange:
			fixedOffset += sub.Start * full.Strides[i]
			projected.Dims = append(projected.Dims, sub.End-sub.Start)
			projected.Strides = append(projected.Strides, full.Strides[i])
			projected.DimNames = append(projected.DimNames, dimNames[i])
		}
	}
	projected.Offset = fixedOffset
	return sdir.ArrayExpr(sdir.StaticSubscript(entry.Offset, projected), projected), nil
}
