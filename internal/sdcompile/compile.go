// Package sdcompile is the lowering pipeline orchestrator (spec §3-§4): it
// turns a frozen sddata.Project into a CompiledProject — per-model offset
// maps, runlists, and bytecode programs — ready for sdsim to execute. It
// ties together sdident (canonicalization), sddim (dimension catalog),
// sdview (array views), sdast (surface AST), sdir (lowered IR), sdoffset
// (slab layout), sdrun (dependency scheduling), and sdbc (bytecode
// compiler): the single place all of those packages meet.
package sdcompile

import (
	"sdengine/internal/sdast"
	"sdengine/internal/sdbc"
	"sdengine/internal/sddata"
	"sdengine/internal/sddim"
	"sdengine/internal/sdident"
	"sdengine/internal/sdir"
	"sdengine/internal/sdlerrors"
	"sdengine/internal/sdlog"
	"sdengine/internal/sdoffset"
	"sdengine/internal/sdrun"
	"sdengine/internal/sdview"
)

// CompiledModel is one model's compiled artifact (spec §3.7): the slab
// layout, the dependency-ordered runlists, the bytecode module (programs
// plus pooled lookup tables and submodule declarations), and bookkeeping
// needed to run it (stock element counts, for net-flow evaluation).
type CompiledModel struct {
	Name        string
	Offsets     *sdoffset.Map
	Runlists    sdrun.Runlists
	Module      *sdbc.Module
	StockElems  map[string]int         // ident -> element count (1 for scalar stocks)
	NonNegative map[string]bool        // ident -> stock's non_negative clamp flag
	VarKinds    map[string]sddata.VarKind // ident -> declared kind, for the interactive surface and override validation
	SimSpecs    sddata.SimSpecs
}

// CompiledProject is the full compiled artifact for a project: one
// CompiledModel per model plus the shared dimension catalog.
type CompiledProject struct {
	Name   string
	Dims   *sddim.Context
	Models map[string]*CompiledModel
}

// ModelByName looks up a compiled model.
func (cp *CompiledProject) ModelByName(name string) *CompiledModel {
	return cp.Models[sdident.Canonicalize(name)]
}

// Compile lowers and compiles every model in project. It returns every
// error encountered across every model rather than stopping at the first,
// since the interactive control surface (spec §5) wants to report the
// full set of problems after a patch.
func Compile(project *sddata.Project) (*CompiledProject, []error) {
	var errs []error

	dims, derrs := buildDimContext(project)
	errs = append(errs, derrs...)

	cp := &CompiledProject{Name: project.Name, Dims: dims, Models: map[string]*CompiledModel{}}
	for i := range project.Models {
		model := &project.Models[i]
		cm, merrs := compileModel(project, model, dims)
		errs = append(errs, merrs...)
		if cm != nil {
			cp.Models[sdident.Canonicalize(model.Name)] = cm
			sdlog.Compile(model.Name, len(model.Variables), cm.Offsets.TotalSize())
		} else {
			sdlog.Warn("model %q failed to compile with %d error(s)", model.Name, len(merrs))
		}
	}
	return cp, errs
}

func buildDimContext(project *sddata.Project) (*sddim.Context, []error) {
	var errs []error
	ctx := sddim.NewContext()
	for _, d := range project.Dimensions {
		name := sdident.Dim(d.Name)
		if d.Kind == sddata.DimIndexed {
			if err := ctx.AddIndexed(name, d.Size); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		elems := make([]sdident.ElementName, len(d.Elements))
		for i, e := range d.Elements {
			elems[i] = sdident.Elem(e)
		}
		if err := ctx.AddNamed(name, elems); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range project.Subdimensions {
		elems := make([]sdident.ElementName, len(s.Elements))
		for i, e := range s.Elements {
			elems[i] = sdident.Elem(e)
		}
		if err := ctx.AddSubdimension(sdident.Dim(s.Name), sdident.Dim(s.Parent), elems); err != nil {
			errs = append(errs, err)
		}
	}
	for _, mp := range project.Mappings {
		em := make(map[sdident.ElementName]sdident.ElementName, len(mp.ElementMap))
		for k, v := range mp.ElementMap {
			em[sdident.Elem(k)] = sdident.Elem(v)
		}
		ctx.AddMapping(sddim.Mapping{
			Source:     sdident.Dim(mp.Source),
			Target:     sdident.Dim(mp.Target),
			ElementMap: em,
		})
	}
	return ctx, errs
}

func compileModel(project *sddata.Project, model *sddata.Model, dims *sddim.Context) (*CompiledModel, []error) {
	var errs []error

	varDims := map[sdident.Canonical][]sdident.DimName{}
	varKind := map[sdident.Canonical]sddata.VarKind{}
	tables := map[sdident.Canonical]*sddata.GraphicalFunction{}
	sizes := make([]sdoffset.VarSize, 0, len(model.Variables))

	for _, v := range model.Variables {
		ident := sdident.Ident(v.Ident)
		varKind[ident] = v.Kind
		if v.HasErrors {
			errs = append(errs, sdlerrors.Variable(sdlerrors.CodeNotSimulatable,
				"variable %q carries type-checking errors", v.Ident).WithLocation(model.Name, v.Ident))
		}
		if v.Table != nil {
			tables[ident] = v.Table
		}
		dimNames := make([]sdident.DimName, len(v.Dims))
		for i, d := range v.Dims {
			dimNames[i] = sdident.Dim(d)
		}
		varDims[ident] = dimNames
		size := 1
		for _, dn := range dimNames {
			if d, ok := dims.Get(dn); ok {
				size *= d.Size
			} else {
				errs = append(errs, sdlerrors.Variable(sdlerrors.CodeBadDimensionName,
					"variable %q declares unknown dimension %q", v.Ident, dn).WithLocation(model.Name, v.Ident))
				size = 0
			}
		}
		if size <= 0 {
			size = 1
		}
		sizes = append(sizes, sdoffset.VarSize{Ident: ident, Size: size})
	}

	offsets := sdoffset.Assign(sizes)

	runlists, err := sdrun.Build(model.Variables)
	if err != nil {
		errs = append(errs, err)
	}

	lc := &lowerCtx{
		project: project, model: model, dims: dims,
		offsets: offsets, varDims: varDims, varKind: varKind, tables: tables,
	}

	mod := &sdbc.Module{Programs: map[string]*sdbc.Program{}}
	stockElems := map[string]int{}
	nonNegative := map[string]bool{}
	kinds := map[string]sddata.VarKind{}

	for _, v := range model.Variables {
		ident := string(sdident.Ident(v.Ident))
		kinds[ident] = v.Kind
		entry, ok := offsets.Get(sdident.Ident(v.Ident))
		if !ok {
			continue
		}
		switch v.Kind {
		case sddata.KindStock:
			stockElems[ident] = entry.Size
			nonNegative[ident] = v.NonNegative
			if err := lc.compileStock(mod, &v, entry); err != nil {
				errs = append(errs, err.WithLocation(model.Name, v.Ident))
			}
		case sddata.KindModule:
			if err := lc.compileModuleVar(mod, &v, entry); err != nil {
				errs = append(errs, err.WithLocation(model.Name, v.Ident))
			}
		default: // Flow, Aux
			if err := lc.compileFlowOrAux(mod, &v, entry); err != nil {
				errs = append(errs, err.WithLocation(model.Name, v.Ident))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	cm := &CompiledModel{
		Name: model.Name, Offsets: offsets, Runlists: runlists,
		Module: mod, StockElems: stockElems, NonNegative: nonNegative, VarKinds: kinds,
	}
	if model.SimSpecs != nil {
		cm.SimSpecs = *model.SimSpecs
	} else {
		cm.SimSpecs = project.SimSpecs
	}
	return cm, errs
}

// lowerCtx carries the per-model context lowerExpr2 needs to resolve
// identifiers to slab offsets and dimension shapes.
type lowerCtx struct {
	project *sddata.Project
	model   *sddata.Model
	dims    *sddim.Context
	offsets *sdoffset.Map
	varDims map[sdident.Canonical][]sdident.DimName
	varKind map[sdident.Canonical]sddata.VarKind
	tables  map[sdident.Canonical]*sddata.GraphicalFunction
}

func (lc *lowerCtx) dimSizes(dimNames []sdident.DimName) []int {
	sizes := make([]int, len(dimNames))
	for i, dn := range dimNames {
		if d, ok := lc.dims.Get(dn); ok {
			sizes[i] = d.Size
		} else {
			sizes[i] = 1
		}
	}
	return sizes
}

func (lc *lowerCtx) compileStock(mod *sdbc.Module, v *sddata.Variable, entry sdoffset.Entry) *sdlerrors.EngineError {
	ident := string(sdident.Ident(v.Ident))
	dimNames := lc.varDims[sdident.Ident(v.Ident)]
	sizes := lc.dimSizes(dimNames)
	n := entry.Size

	// Initial value: Init equation, defaulting to zero.
	initStmts := make([]*sdir.Expr, 0, n)
	if n == 1 {
		var ie *sdast.VarEquation = v.Init
		var valExpr *sdir.Expr
		var err error
		if ie != nil && ie.Expr != nil {
			valExpr, err = lc.lowerScalar(ie.Expr, nil, nil)
		} else {
			valExpr = sdir.ConstExpr(0)
		}
		if err != nil {
			return toEngineError(err)
		}
		initStmts = append(initStmts, sdir.AssignCurr(entry.Offset, valExpr))
	} else {
		if v.Init == nil || v.Init.Expr == nil {
			for k := 0; k < n; k++ {
				initStmts = append(initStmts, sdir.AssignCurr(entry.Offset+k, sdir.ConstExpr(0)))
			}
		} else {
			it := sdview.NewIterator(sdview.Contiguous(sizes, dimNameStrs(dimNames)))
			for it.Next() {
				idx := it.Indices()
				e, err := lc.lowerScalar(v.Init.Expr, dimNameStrs(dimNames), idx)
				if err != nil {
					return toEngineError(err)
				}
				initStmts = append(initStmts, sdir.AssignCurr(entry.Offset+it.Offset(), e))
			}
		}
	}
	prog, cerr := sdbc.CompileMulti(mod, initStmts)
	if cerr != nil {
		return toEngineError(cerr)
	}
	mod.Programs[ident+".init"] = prog

	// Net flow rate: sum(inflows) - sum(outflows), per element.
	netExprs := make([]*sdir.Expr, 0, n)
	for k := 0; k < n; k++ {
		var net *sdir.Expr
		for _, in := range v.Inflows {
			e, ok := lc.offsets.Get(sdident.Ident(in))
			if !ok {
				return sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown inflow %q", in)
			}
			term := sdir.Var(e.Offset + k)
			if net == nil {
				net = term
			} else {
				net = sdir.BinOp(sdir.OpAdd, net, term)
			}
		}
		for _, out := range v.Outflows {
			e, ok := lc.offsets.Get(sdident.Ident(out))
			if !ok {
				return sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown outflow %q", out)
			}
			term := sdir.Var(e.Offset + k)
			if net == nil {
				net = sdir.BinOp(sdir.OpSub, sdir.ConstExpr(0), term)
			} else {
				net = sdir.BinOp(sdir.OpSub, net, term)
			}
		}
		if net == nil {
			net = sdir.ConstExpr(0)
		}
		netExprs = append(netExprs, net)
	}
	for k, e := range netExprs {
		prog, cerr := sdbc.CompileValue(mod, e)
		if cerr != nil {
			return toEngineError(cerr)
		}
		mod.Programs[elemKey(ident, n, k)+".net"] = prog
	}
	return nil
}

func (lc *lowerCtx) compileFlowOrAux(mod *sdbc.Module, v *sddata.Variable, entry sdoffset.Entry) *sdlerrors.EngineError {
	ident := string(sdident.Ident(v.Ident))
	dimNames := lc.varDims[sdident.Ident(v.Ident)]
	sizes := lc.dimSizes(dimNames)
	n := entry.Size

	build := func(eq *sdast.VarEquation) ([]*sdir.Expr, *sdlerrors.EngineError) {
		stmts := make([]*sdir.Expr, 0, n)
		if eq == nil || (eq.Expr == nil && eq.Elements == nil) {
			if v.Table != nil {
				return stmts, nil // table-only var: value set externally via override/lookup caller
			}
			for k := 0; k < n; k++ {
				stmts = append(stmts, sdir.AssignCurr(entry.Offset+k, sdir.ConstExpr(0)))
			}
			return stmts, nil
		}
		if n == 1 {
			e, err := lc.lowerScalar(eq.Expr, nil, nil)
			if err != nil {
				return nil, toEngineError(err)
			}
			stmts = append(stmts, sdir.AssignCurr(entry.Offset, e))
			return stmts, nil
		}
		if eq.Shape == sdast.ShapeArrayed && eq.Elements != nil {
			for k, elemExpr := range eq.Elements {
				e, err := lc.lowerScalar(elemExpr, nil, nil)
				if err != nil {
					return nil, toEngineError(err)
				}
				stmts = append(stmts, sdir.AssignCurr(entry.Offset+k, e))
			}
			return stmts, nil
		}
		it := sdview.NewIterator(sdview.Contiguous(sizes, dimNameStrs(dimNames)))
		for it.Next() {
			idx := it.Indices()
			e, err := lc.lowerScalar(eq.Expr, dimNameStrs(dimNames), idx)
			if err != nil {
				return nil, toEngineError(err)
			}
			stmts = append(stmts, sdir.AssignCurr(entry.Offset+it.Offset(), e))
		}
		return stmts, nil
	}

	stmts, err := build(v.Equation)
	if err != nil {
		return err
	}
	if len(stmts) > 0 {
		prog, cerr := sdbc.CompileMulti(mod, stmts)
		if cerr != nil {
			return toEngineError(cerr)
		}
		mod.Programs[ident] = prog
	}

	initEq := v.InitEq
	if initEq == nil {
		initEq = v.Equation
	}
	initStmts, err := build(initEq)
	if err != nil {
		return err
	}
	if len(initStmts) > 0 {
		prog, cerr := sdbc.CompileMulti(mod, initStmts)
		if cerr != nil {
			return toEngineError(cerr)
		}
		mod.Programs[ident+".init"] = prog
	}
	return nil
}

func (lc *lowerCtx) compileModuleVar(mod *sdbc.Module, v *sddata.Variable, entry sdoffset.Entry) *sdlerrors.EngineError {
	ident := string(sdident.Ident(v.Ident))
	inputs := make([]*sdir.Expr, len(v.Inputs))
	dst := make([]string, len(v.Inputs))
	for i, b := range v.Inputs {
		e, ok := lc.offsets.Get(sdident.Ident(b.Src))
		if !ok {
			return sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "module input source %q not found", b.Src)
		}
		inputs[i] = sdir.Var(e.Offset)
		dst[i] = b.Dst
	}
	call := sdir.EvalModule(ident, v.ModelName, inputs, dst)
	prog, cerr := sdbc.Compile(mod, sdir.AssignCurr(entry.Offset, call))
	if cerr != nil {
		return toEngineError(cerr)
	}
	mod.Programs[ident] = prog
	mod.Programs[ident+".init"] = prog
	return nil
}

func elemKey(ident string, n, k int) string {
	if n == 1 {
		return ident
	}
	return ident + "#" + itoa(k)
}

func itoa(k int) string {
	if k == 0 {
		return "0"
	}
	digits := []byte{}
	for k > 0 {
		digits = append([]byte{byte('0' + k%10)}, digits...)
		k /= 10
	}
	return string(digits)
}

func dimNameStrs(dn []sdident.DimName) []string {
	out := make([]string, len(dn))
	for i, d := range dn {
		out[i] = string(d)
	}
	return out
}

func toEngineError(err error) *sdlerrors.EngineError {
	if ee, ok := err.(*sdlerrors.EngineError); ok {
		return ee
	}
	return sdlerrors.Generic("%v", err)
}
