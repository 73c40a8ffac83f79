package sdbc

import (
	"sdengine/internal/sdir"
	"sdengine/internal/sdlerrors"
	"sdengine/internal/sdview"
)

// arrayBuiltins is the set of sdir.Builtin values whose sole argument is
// array-valued (a KindArrayExpr) rather than a scalar expression.
var arrayBuiltins = map[sdir.Builtin]bool{
	sdir.BFSum:      true,
	sdir.BFMean:     true,
	sdir.BFStddev:   true,
	sdir.BFSize:     true,
	sdir.BFMinArray: true,
	sdir.BFMaxArray: true,
}

// CompileValue translates a bare (non-assigning) IR expression into a
// Program that leaves its value on the stack for OpRet — used for a
// stock's net-flow rate, which sdsim reads directly rather than having the
// compiler write it into the slab.
func CompileValue(m *Module, root *sdir.Expr) (*Program, error) {
	p := newProgram()
	c := &compiler{p: p, m: m}
	if err := c.compileScalar(root); err != nil {
		return nil, err
	}
	p.writeOp(OpRet)
	return p, nil
}

// CompileMulti sequences several assignment statements (e.g. one per
// element of an arrayed or apply-to-all variable) into a single Program.
func CompileMulti(m *Module, roots []*sdir.Expr) (*Program, error) {
	p := newProgram()
	c := &compiler{p: p, m: m}
	for _, root := range roots {
		if err := c.compileStmt(root); err != nil {
			return nil, err
		}
	}
	p.writeOp(OpLoadConstant)
	p.writeUint32(p.addConstant(0))
	p.writeOp(OpRet)
	return p, nil
}

// Compile translates one variable's root IR node (an AssignCurr or
// AssignNext produced by the lowering pipeline) into a bytecode Program,
// pooling any graphical-function tables and submodule declarations it
// references into m.
func Compile(m *Module, root *sdir.Expr) (*Program, error) {
	p := newProgram()
	c := &compiler{p: p, m: m}
	if err := c.compileStmt(root); err != nil {
		return nil, err
	}
	// OpRet pops a result: the slot an AssignCurr just wrote, else 0.
	if root.Kind == sdir.KindAssignCurr {
		p.writeOp(OpLoadVar)
		p.writeUint32(root.Offset)
	} else {
		p.writeOp(OpLoadConstant)
		p.writeUint32(p.addConstant(0))
	}
	p.writeOp(OpRet)
	return p, nil
}

type compiler struct {
	p *Program
	m *Module
}

// tableIndex pools e's inline graphical-function knots into the shared
// Module, reusing an existing entry whose X and Y knot values are equal
// (the Extrapolate flag is not compared).
func (c *compiler) tableIndex(e *sdir.Expr) int {
	for i, t := range c.m.Tables {
		if len(t.X) == len(e.TableX) && sameFloats(t.X, e.TableX) && sameFloats(t.Y, e.TableY) {
			return i
		}
	}
	c.m.Tables = append(c.m.Tables, LookupTable{X: e.TableX, Y: e.TableY, Extrapolate: e.TableExtrapolate})
	return len(c.m.Tables) - 1
}

func sameFloats(a, b []float64) bool {
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

// compileStmt compiles a top-level assignment node, which writes into the
// slab and leaves nothing further for the caller.
func (c *compiler) compileStmt(e *sdir.Expr) error {
	switch e.Kind {
	case sdir.KindAssignCurr:
		if err := c.compileScalar(e.Value); err != nil {
			return err
		}
		c.p.writeOp(OpAssignCurr)
		c.p.writeUint32(e.Offset)
		return nil
	case sdir.KindAssignNext:
		if err := c.compileScalar(e.Value); err != nil {
			return err
		}
		c.p.writeOp(OpAssignNext)
		c.p.writeUint32(e.Offset)
		return nil
	case sdir.KindAssignTemp:
		inner := e.Value
		if inner.Kind != sdir.KindArrayExpr {
			inner = sdir.ArrayExpr(inner, e.View)
		}
		taskIdx := c.p.addArrayTask(inner.Inner, inner.View)
		c.p.writeOp(OpAssignTempArray)
		c.p.writeUint32(taskIdx)
		c.p.writeUint32(e.TempID)
		return nil
	default:
		return sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeGeneric,
			"compile: unexpected top-level node kind %d", e.Kind)
	}
}

// compileScalar emits code that leaves exactly one scalar value on the
// stack.
func (c *compiler) compileScalar(e *sdir.Expr) error {
	p := c.p
	switch e.Kind {
	case sdir.KindConst:
		idx := p.addConstant(e.Const)
		p.writeOp(OpLoadConstant)
		p.writeUint32(idx)

	case sdir.KindDt:
		p.writeOp(OpLoadGlobalVar)
		p.writeUint32(1) // sdoffset.Dt

	case sdir.KindVar:
		p.writeOp(OpLoadVar)
		p.writeUint32(e.Offset)

	case sdir.KindModuleInput:
		p.writeOp(OpLoadModuleInput)
		p.writeUint32(e.Offset)

	case sdir.KindStaticSubscript:
		if e.View.Size() != 1 {
			return sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeGeneric,
				"compile: scalar context reached a multi-element static subscript")
		}
		it := sdview.NewIterator(e.View)
		it.Next()
		p.writeOp(OpLoadVar)
		p.writeUint32(e.Offset + it.Offset())

	case sdir.KindTempArrayElement:
		p.writeOp(OpLoadTempElement)
		p.writeUint32(e.TempID)
		p.writeUint32(e.ElementIndex)

	case sdir.KindSubscript:
		for _, idx := range e.Indices {
			if err := c.compileScalar(idx.Index); err != nil {
				return err
			}
			p.writeOp(OpPushSubscriptIndex)
			p.writeUint32(idx.Stride)
			p.writeUint32(idx.Bound)
		}
		p.writeOp(OpLoadSubscript)
		p.writeUint32(e.Offset)

	case sdir.KindOp2:
		if err := c.compileScalar(e.Left); err != nil {
			return err
		}
		if err := c.compileScalar(e.Right); err != nil {
			return err
		}
		p.writeOp(OpOp2)
		p.writeByte(byte(binOpCode(e.Op2)))

	case sdir.KindOp1:
		if err := c.compileScalar(e.Inner); err != nil {
			return err
		}
		switch e.Op1 {
		case sdir.OpNot:
			p.writeOp(OpNot)
		default:
			return sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeGeneric,
				"compile: unary op %d not valid in scalar context", e.Op1)
		}

	case sdir.KindIf:
		if err := c.compileScalar(e.Cond); err != nil {
			return err
		}
		if err := c.compileScalar(e.Then); err != nil {
			return err
		}
		if err := c.compileScalar(e.Else); err != nil {
			return err
		}
		p.writeOp(OpIf)

	case sdir.KindApp:
		return c.compileApp(e)

	case sdir.KindEvalModule:
		for _, in := range e.Inputs {
			if err := c.compileScalar(in); err != nil {
				return err
			}
		}
		declIdx := c.moduleDeclIndex(e.ModuleIdent, e.ModelName, len(e.Inputs), e.Dst)
		p.writeOp(OpEvalModule)
		p.writeUint32(declIdx)


	default:
		return sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeGeneric,
			"compile: node kind %d not valid in scalar context", e.Kind)
	}
	return nil
}

func (c *compiler) compileApp(e *sdir.Expr) error {
	p := c.p
	if arrayBuiltins[e.Fn] {
		if len(e.Args) != 1 {
			return sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeGeneric,
				"compile: array builtin expects exactly one argument")
		}
		arg := e.Args[0]
		if arg.Kind != sdir.KindArrayExpr {
			return sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeGeneric,
				"compile: array builtin argument is not array-valued")
		}
		taskIdx := p.addArrayTask(arg.Inner, arg.View)
		p.writeOp(OpApplyArray)
		p.writeUint32(taskIdx)
		p.writeByte(byte(e.Fn))
		return nil
	}
	if e.Fn == sdir.BFLookup {
		if len(e.Args) != 1 {
			return sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeGeneric,
				"compile: lookup expects exactly one argument")
		}
		if err := c.compileScalar(e.Args[0]); err != nil {
			return err
		}
		p.writeOp(OpLookup)
		p.writeUint32(c.tableIndex(e))
		return nil
	}
	for _, a := range e.Args {
		if err := c.compileScalar(a); err != nil {
			return err
		}
	}
	p.writeOp(OpApply)
	p.writeByte(byte(e.Fn))
	p.writeByte(byte(len(e.Args)))
	return nil
}

// moduleDeclIndex pools one ModuleDecl per distinct invocation site (each
// module instance in a model is a distinct Ident, so no dedup beyond that
// is meaningful).
func (c *compiler) moduleDeclIndex(ident, modelName string, numInputs int, dst []string) int {
	for i, d := range c.m.ModuleDecls {
		if d.Ident == ident {
			return i
		}
	}
	c.m.ModuleDecls = append(c.m.ModuleDecls, ModuleDecl{Ident: ident, ModelName: modelName, NumInputs: numInputs, Dst: dst})
	return len(c.m.ModuleDecls) - 1
}

func binOpCode(op sdir.BinaryOp) BinOpCode {
	switch op {
	case sdir.OpAdd:
		return BinAdd
	case sdir.OpSub:
		return BinSub
	case sdir.OpMul:
		return BinMul
	case sdir.OpDiv:
		return BinDiv
	case sdir.OpMod:
		return BinMod
	case sdir.OpExp:
		return BinExp
	case sdir.OpEq:
		return BinEq
	case sdir.OpNeq:
		return BinNeq
	case sdir.OpGt:
		return BinGt
	case sdir.OpGte:
		return BinGte
	case sdir.OpLt:
		return BinLt
	case sdir.OpLte:
		return BinLte
	case sdir.OpAnd:
		return BinAnd
	case sdir.OpOr:
		return BinOr
	}
	return BinAdd
}
