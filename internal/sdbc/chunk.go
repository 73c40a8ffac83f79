package sdbc

import (
	"sdengine/internal/sdir"
	"sdengine/internal/sdview"
)

// LookupTable is a pooled graphical function (spec §4.4's `lookup` builtin;
// supplemented from original_source/compiler/context.rs's graphical-function
// pooling — §D.1 of SPEC_FULL.md — so a table is compiled once per module,
// not re-embedded at every call site).
type LookupTable struct {
	X           []float64
	Y           []float64
	Extrapolate bool // false = clamp (the default; spec §9 open question)
}

// Lookup clamps or linearly extrapolates x against the table and linearly
// interpolates between knots.
func (t LookupTable) Lookup(x float64) float64 {
	n := len(t.X)
	if n == 0 {
		return 0
	}
	if x <= t.X[0] {
		if !t.Extrapolate || n < 2 {
			return t.Y[0]
		}
		return extrapolate(t.X[0], t.Y[0], t.X[1], t.Y[1], x)
	}
	if x >= t.X[n-1] {
		if !t.Extrapolate || n < 2 {
			return t.Y[n-1]
		}
		return extrapolate(t.X[n-2], t.Y[n-2], t.X[n-1], t.Y[n-1], x)
	}
	for i := 1; i < n; i++ {
		if x <= t.X[i] {
			x0, x1 := t.X[i-1], t.X[i]
			y0, y1 := t.Y[i-1], t.Y[i]
			if x1 == x0 {
				return y0
			}
			frac := (x - x0) / (x1 - x0)
			return y0 + frac*(y1-y0)
		}
	}
	return t.Y[n-1]
}

func extrapolate(x0, y0, x1, y1, x float64) float64 {
	if x1 == x0 {
		return y1
	}
	slope := (y1 - y0) / (x1 - x0)
	return y1 + slope*(x-x1)
}

// ModuleDecl records one submodel invocation site so the VM can dispatch
// EvalModule without re-deriving the callee's identity from bytecode
// operands.
type ModuleDecl struct {
	Ident     string
	ModelName string
	NumInputs int
	// Dst is the submodel's bound input variable name for each positional
	// input value the VM evaluates before dispatching, parallel to the
	// OpEvalModule operand-stack order.
	Dst []string
}

// ArrayTask is a pooled (expr, view) pair for the array-reduction and
// temp-materialization opcodes: the VM tree-walks Expr once per element of
// View rather than the compiler unrolling it into scalar bytecode, since an
// array builtin's argument size is a property of the model, not known to be
// small (spec §9: "Reductions ... iterate at runtime driven by an
// ArrayView").
type ArrayTask struct {
	Expr *sdir.Expr
	View sdview.View
}

// Program is one variable's compiled bytecode: a linear instruction stream
// plus the constant pool it indexes into. Every walk() call (spec §4.5)
// produces a fresh Program.
type Program struct {
	Code       []byte
	Constants  []float64
	ArrayTasks []ArrayTask
	MaxStack   int
}

func newProgram() *Program {
	return &Program{}
}

func (p *Program) writeOp(op OpCode) { p.Code = append(p.Code, byte(op)) }

func (p *Program) writeByte(b byte) { p.Code = append(p.Code, b) }

func (p *Program) writeUint32(v int) {
	p.Code = append(p.Code,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (p *Program) addConstant(v float64) int {
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

func (p *Program) addArrayTask(expr *sdir.Expr, view sdview.View) int {
	p.ArrayTasks = append(p.ArrayTasks, ArrayTask{Expr: expr, View: view})
	return len(p.ArrayTasks) - 1
}

// Module is the compiled artifact for one datamodel Model: a bytecode
// Program per runlist entry, the pooled lookup tables, and the submodule
// declarations referenced by EvalModule nodes. The compiler (sdcompile)
// assembles these into the CompiledModule tree spec §3.7 describes.
type Module struct {
	Programs    map[string]*Program // keyed by variable ident
	Tables      []LookupTable
	ModuleDecls []ModuleDecl
}
