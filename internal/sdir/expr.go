// Package sdir defines the lowered, offset-addressed intermediate
// representation (spec §3.6): the exhaustive Expr node-kind set produced by
// the lowering pipeline and consumed by the bytecode compiler.
package sdir

import "sdengine/internal/sdview"

// Kind discriminates an Expr's node type. Go has no sum types, so Expr
// carries a Kind tag plus the fields relevant to that kind — the teacher's
// bytecode opcode enum (internal/bytecode/opcodes.go) uses the same
// flat-tag-plus-fields shape for the same reason (a byte opcode selecting
// which operand fields are meaningful).
type Kind int

const (
	KindConst Kind = iota
	KindVar
	KindSubscript
	KindStaticSubscript
	KindTempArray
	KindTempArrayElement
	KindDt
	KindApp
	KindEvalModule
	KindModuleInput
	KindOp2
	KindOp1
	KindIf
	KindAssignCurr
	KindAssignNext
	KindAssignTemp
	// KindArrayExpr wraps an array-valued subtree at the one kind of
	// position that needs it: a reduction builtin's argument, or an
	// AssignTemp's materialized value. Inner may itself contain Var,
	// StaticSubscript, TempArray, Op2/Op1, Const, If nodes composed
	// elementwise; the VM walks it once per position in View rather than
	// the compiler unrolling it into per-element bytecode (spec §4.6: the
	// operand stack is scalar-only).
	KindArrayExpr
)

// BinaryOp enumerates Op2 operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpExp
	OpEq
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpAnd
	OpOr
)

// UnaryOp enumerates Op1 operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpTranspose
)

// Builtin enumerates the builtin function table (spec §4.4).
type Builtin int

const (
	BFAbs Builtin = iota
	BFSign
	BFSqrt
	BFExp
	BFLn
	BFLog10
	BFSin
	BFCos
	BFTan
	BFArcsin
	BFArccos
	BFArctan
	BFInt
	BFMinArray
	BFMaxArray
	BFMinScalar
	BFMaxScalar
	BFSum
	BFMean
	BFStddev
	BFSize
	BFStep
	BFPulse
	BFRamp
	BFSafediv
	BFLookup
	BFIsModuleInput
	BFTime
	BFTimeStep
	BFInitialTime
	BFFinalTime
	BFPi
	BFInf
)

// SubscriptIndex is one dynamic (not compile-time-foldable) axis remaining
// in a Subscript node after static folding. Range subscripts with dynamic
// bounds are not represented here: the lowering pipeline resolves every
// Range/Wildcard/DimPosition/SparseRange axis into a StaticSubscript view
// at compile time (spec §4.3.4); only Single axes whose index expression
// cannot be reduced to a compile-time constant reach the VM dynamically
// (spec §4.3.3's "handled dynamically at run time" case).
type SubscriptIndex struct {
	// Index computes a 1-based, source-level index at run time (spec
	// §4.5's PushSubscriptIndex: "pop one value, convert to
	// 1-based-into-zero-based").
	Index *Expr
	// Stride is this axis's slab stride, so the VM can accumulate a flat
	// offset without re-deriving mixed-radix arithmetic from Bound alone.
	Stride int
	// Bound is this axis's size, for runtime bounds validation.
	Bound int
}

// Expr is one node of the lowered IR tree.
type Expr struct {
	Kind Kind

	// KindConst
	Const float64

	// KindVar, KindSubscript, KindStaticSubscript base offset
	Offset int

	// KindSubscript: Offset already folds in every statically-resolved
	// axis's contribution; Indices holds the remaining dynamic axes.
	Indices []SubscriptIndex

	// KindStaticSubscript, KindTempArray, KindTempArrayElement, KindAssignTemp
	View sdview.View

	// KindTempArray, KindTempArrayElement, KindAssignTemp
	TempID int
	// KindTempArrayElement
	ElementIndex int

	// KindApp
	Fn   Builtin
	Args []*Expr

	// KindApp, Fn == BFLookup: the graphical function's knots, carried
	// inline rather than by pool index so sdir stays self-contained. The
	// bytecode compiler (sdbc) is responsible for deduplicating identical
	// tables into its module-level pool.
	TableX           []float64
	TableY           []float64
	TableExtrapolate bool

	// KindEvalModule
	ModuleIdent string
	ModelName   string
	Inputs      []*Expr
	// Dst names, parallel to Inputs, the submodel's bound input variable
	// each value is written into before the submodel runs.
	Dst []string

	// KindOp2
	Op2   BinaryOp
	Left  *Expr
	Right *Expr

	// KindOp1
	Op1   UnaryOp
	Inner *Expr

	// KindIf
	Cond *Expr
	Then *Expr
	Else *Expr

	// KindAssignCurr, KindAssignNext, KindAssignTemp: Value to assign.
	Value *Expr
}

// Const builds a KindConst leaf.
func ConstExpr(v float64) *Expr { return &Expr{Kind: KindConst, Const: v} }

// Var builds a KindVar leaf referencing a single slab slot.
func Var(offset int) *Expr { return &Expr{Kind: KindVar, Offset: offset} }

// DtExpr builds the KindDt leaf.
func DtExpr() *Expr { return &Expr{Kind: KindDt} }

// ModuleInput builds a KindModuleInput leaf.
func ModuleInput(offset int) *Expr { return &Expr{Kind: KindModuleInput, Offset: offset} }

// StaticSubscript builds a KindStaticSubscript node.
func StaticSubscript(base int, view sdview.View) *Expr {
	return &Expr{Kind: KindStaticSubscript, Offset: base, View: view}
}

// Subscript builds a dynamic KindSubscript node. base already folds in
// every statically-resolved axis's contribution.
func Subscript(base int, indices []SubscriptIndex) *Expr {
	return &Expr{Kind: KindSubscript, Offset: base, Indices: indices}
}

// BinOp builds a KindOp2 node.
func BinOp(op BinaryOp, l, r *Expr) *Expr {
	return &Expr{Kind: KindOp2, Op2: op, Left: l, Right: r}
}

// UnOp builds a KindOp1 node.
func UnOp(op UnaryOp, inner *Expr) *Expr {
	return &Expr{Kind: KindOp1, Op1: op, Inner: inner}
}

// IfExpr builds a KindIf node.
func IfExpr(cond, then, els *Expr) *Expr {
	return &Expr{Kind: KindIf, Cond: cond, Then: then, Else: els}
}

// App builds a KindApp node.
func App(fn Builtin, args ...*Expr) *Expr {
	return &Expr{Kind: KindApp, Fn: fn, Args: args}
}

// AppLookup builds a BFLookup KindApp node carrying its graphical
// function's knots inline.
func AppLookup(arg *Expr, tableX, tableY []float64, extrapolate bool) *Expr {
	return &Expr{
		Kind: KindApp, Fn: BFLookup, Args: []*Expr{arg},
		TableX: tableX, TableY: tableY, TableExtrapolate: extrapolate,
	}
}

// AssignCurr builds a write into the current-step slab.
func AssignCurr(offset int, v *Expr) *Expr {
	return &Expr{Kind: KindAssignCurr, Offset: offset, Value: v}
}

// AssignNext builds a write into the next-step slab (stocks only).
func AssignNext(offset int, v *Expr) *Expr {
	return &Expr{Kind: KindAssignNext, Offset: offset, Value: v}
}

// AssignTemp builds a temp-materialization node.
func AssignTemp(tempID int, v *Expr, view sdview.View) *Expr {
	return &Expr{Kind: KindAssignTemp, TempID: tempID, Value: v, View: view}
}

// TempArray builds a reference to a materialized temp array.
func TempArray(tempID int, view sdview.View) *Expr {
	return &Expr{Kind: KindTempArray, TempID: tempID, View: view}
}

// TempArrayElement builds a reference to one element of a materialized temp.
func TempArrayElement(tempID int, view sdview.View, elementIndex int) *Expr {
	return &Expr{Kind: KindTempArrayElement, TempID: tempID, View: view, ElementIndex: elementIndex}
}

// ArrayExpr wraps inner as an array-valued subtree of the given output
// shape.
func ArrayExpr(inner *Expr, view sdview.View) *Expr {
	return &Expr{Kind: KindArrayExpr, Inner: inner, View: view}
}

// EvalModule builds a submodel invocation. dst[i] is the submodel input
// variable inputs[i]'s value is bound to.
func EvalModule(ident, modelName string, inputs []*Expr, dst []string) *Expr {
	return &Expr{Kind: KindEvalModule, ModuleIdent: ident, ModelName: modelName, Inputs: inputs, Dst: dst}
}
