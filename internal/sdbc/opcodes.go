// Package sdbc is the bytecode compiler and instruction set (spec §4.5):
// translates a lowered sdir.Expr tree into a linear opcode stream plus a
// per-module literal pool. Opcode layout is grounded directly on the
// teacher's internal/bytecode/opcodes.go (a byte OpCode enum consumed by a
// stack VM).
package sdbc

// OpCode is one VM instruction.
type OpCode byte

const (
	OpLoadConstant OpCode = iota
	OpLoadVar
	OpLoadGlobalVar
	OpLoadModuleInput
	OpPushSubscriptIndex
	OpLoadSubscript
	OpOp2
	OpNot
	// OpIf pops three values pushed in Cond, Then, Else emission order
	// (so Else sits on top) and pushes Then if Cond != 0, else Else. Both
	// branches are always evaluated: equations have no side effects, so an
	// eager ternary is equivalent to a short-circuiting jump and needs no
	// branch targets in the instruction stream.
	OpIf
	OpApply
	OpLookup
	OpEvalModule
	OpAssignCurr
	OpAssignNext
	OpRet

	// Array-reduction / temp-materialization support (spec §9: "Reductions
	// ... iterate at runtime driven by an ArrayView"). These carry an index
	// into the Program's ArrayTasks pool rather than operating on stack
	// operands, since the stack itself is scalar-only (spec §4.6).
	OpApplyArray
	OpAssignTempArray
	OpLoadTempElement
)

// BinOpCode mirrors sdir.BinaryOp as a byte-sized operand for OpOp2.
type BinOpCode byte

const (
	BinAdd BinOpCode = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinExp
	BinEq
	BinNeq
	BinGt
	BinGte
	BinLt
	BinLte
	BinAnd
	BinOr
)
