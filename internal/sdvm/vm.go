// Package sdvm is the stack machine that executes one variable's compiled
// sdbc.Program against a model instance's f64 slab (spec §4.6). The
// execution loop's shape — an instruction pointer walking a []byte chunk,
// a scalar value stack, a decode-dispatch switch — is grounded on the
// teacher's internal/vm/vm.go; the instruction set and slab addressing are
// the engine's own (spec §3.4-§4.6).
package sdvm

import (
	"math"

	"sdengine/internal/sdbc"
	"sdengine/internal/sdir"
	"sdengine/internal/sdlerrors"
	"sdengine/internal/sdoffset"
	"sdengine/internal/sdview"
)

// Frame is the addressable state one Program execution runs against: the
// model instance's current-step slab, the next-step slab (stocks only, may
// be nil when evaluating an initial or a non-stock flow/aux), the
// materialized temp-array buffers keyed by TempID, and the module-input
// registers visible to OpLoadModuleInput (only populated when this Program
// belongs to a module's bound input expression).
type Frame struct {
	Curr         []float64
	Next         []float64
	Temps        map[int][]float64
	ModuleInputs []float64
}

// ModuleEval dispatches a submodel invocation: given the declared callee,
// its evaluated input values, and the calling frame's current time, it
// returns that module's output value. t is threaded through explicitly
// rather than read off some Sim-level field because RK4's intermediate
// k-stages evaluate at distinct sub-step times before the enclosing step
// commits. sdsim supplies the real implementation (running a nested Sim);
// sdvm only depends on the signature so the two packages don't form an
// import cycle.
type ModuleEval func(decl sdbc.ModuleDecl, inputs []float64, t float64) (float64, error)

// Run executes p against frame and returns the value its OpRet leaves on
// the stack.
func Run(p *sdbc.Program, m *sdbc.Module, frame *Frame, evalModule ModuleEval) (float64, error) {
	vm := &vmState{p: p, m: m, frame: frame, evalModule: evalModule}
	return vm.run()
}

type vmState struct {
	p          *sdbc.Program
	m          *sdbc.Module
	frame      *Frame
	evalModule ModuleEval

	stack   []float64
	ip      int
	subAccum int
}

func (vm *vmState) push(v float64) { vm.stack = append(vm.stack, v) }

func (vm *vmState) pop() float64 {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *vmState) readByte() byte {
	b := vm.p.Code[vm.ip]
	vm.ip++
	return b
}

func (vm *vmState) readUint32() int {
	c := vm.p.Code
	v := int(c[vm.ip]) | int(c[vm.ip+1])<<8 | int(c[vm.ip+2])<<16 | int(c[vm.ip+3])<<24
	vm.ip += 4
	return v
}

func (vm *vmState) run() (float64, error) {
	code := vm.p.Code
	for vm.ip < len(code) {
		op := sdbc.OpCode(vm.readByte())
		switch op {
		case sdbc.OpLoadConstant:
			idx := vm.readUint32()
			vm.push(vm.p.Constants[idx])

		case sdbc.OpLoadVar:
			off := vm.readUint32()
			vm.push(vm.frame.Curr[off])

		case sdbc.OpLoadGlobalVar:
			off := vm.readUint32()
			vm.push(vm.frame.Curr[off])

		case sdbc.OpLoadModuleInput:
			off := vm.readUint32()
			vm.push(vm.frame.ModuleInputs[off])

		case sdbc.OpPushSubscriptIndex:
			stride := vm.readUint32()
			bound := vm.readUint32()
			raw := vm.pop()
			idx := int(raw) - 1 // source-level 1-based -> 0-based
			if idx < 0 || idx >= bound {
				return 0, sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeBadOverride,
					"subscript index %d out of bounds [0,%d)", idx, bound)
			}
			vm.subAccum += idx * stride

		case sdbc.OpLoadSubscript:
			base := vm.readUint32()
			off := base + vm.subAccum
			vm.subAccum = 0
			vm.push(vm.frame.Curr[off])

		case sdbc.OpOp2:
			bc := sdbc.BinOpCode(vm.readByte())
			b := vm.pop()
			a := vm.pop()
			vm.push(applyBinOp(bc, a, b))

		case sdbc.OpNot:
			a := vm.pop()
			if a == 0 {
				vm.push(1)
			} else {
				vm.push(0)
			}

		case sdbc.OpIf:
			elseV := vm.pop()
			thenV := vm.pop()
			condV := vm.pop()
			if condV != 0 {
				vm.push(thenV)
			} else {
				vm.push(elseV)
			}

		case sdbc.OpApply:
			fn := sdir.Builtin(vm.readByte())
			argc := int(vm.readByte())
			args := make([]float64, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = vm.pop()
			}
			v, err := applyScalarBuiltin(fn, args, vm.frame)
			if err != nil {
				return 0, err
			}
			vm.push(v)

		case sdbc.OpLookup:
			idx := vm.readUint32()
			x := vm.pop()
			vm.push(vm.m.Tables[idx].Lookup(x))

		case sdbc.OpEvalModule:
			idx := vm.readUint32()
			decl := vm.m.ModuleDecls[idx]
			inputs := make([]float64, decl.NumInputs)
			for i := decl.NumInputs - 1; i >= 0; i-- {
				inputs[i] = vm.pop()
			}
			if vm.evalModule == nil {
				return 0, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeGeneric,
					"module %q invoked with no evaluator wired", decl.Ident)
			}
			v, err := vm.evalModule(decl, inputs, vm.frame.Curr[sdoffset.Time])
			if err != nil {
				return 0, err
			}
			vm.push(v)

		case sdbc.OpAssignCurr:
			off := vm.readUint32()
			vm.frame.Curr[off] = vm.pop()

		case sdbc.OpAssignNext:
			off := vm.readUint32()
			vm.frame.Next[off] = vm.pop()

		case sdbc.OpApplyArray:
			taskIdx := vm.readUint32()
			fn := sdir.Builtin(vm.readByte())
			task := vm.p.ArrayTasks[taskIdx]
			vals := vm.collectArray(task)
			v, err := applyReduction(fn, vals)
			if err != nil {
				return 0, err
			}
			vm.push(v)

		case sdbc.OpAssignTempArray:
			taskIdx := vm.readUint32()
			tempID := vm.readUint32()
			task := vm.p.ArrayTasks[taskIdx]
			vals := vm.collectArray(task)
			if vm.frame.Temps == nil {
				vm.frame.Temps = make(map[int][]float64)
			}
			vm.frame.Temps[tempID] = vals

		case sdbc.OpLoadTempElement:
			tempID := vm.readUint32()
			elemIdx := vm.readUint32()
			vm.push(vm.frame.Temps[tempID][elemIdx])

		case sdbc.OpRet:
			return vm.pop(), nil

		default:
			return 0, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeGeneric,
				"unknown opcode %d", op)
		}
	}
	return 0, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeGeneric, "program fell off the end without OpRet")
}

// collectArray walks task.View in row-major order, evaluating task.Expr at
// each position via arrayEval, and returns the flattened results.
func (vm *vmState) collectArray(task sdbc.ArrayTask) []float64 {
	it := sdview.NewIterator(task.View)
	out := make([]float64, 0, task.View.Size())
	idx := make([]int, len(task.View.Dims))
	for it.Next() {
		copy(idx, it.Indices())
		out = append(out, vm.arrayEval(task.Expr, idx))
	}
	return out
}

// arrayEval evaluates an array-valued subtree at one output position.
func (vm *vmState) arrayEval(e *sdir.Expr, idx []int) float64 {
	switch e.Kind {
	case sdir.KindConst:
		return e.Const
	case sdir.KindVar:
		return vm.frame.Curr[e.Offset]
	case sdir.KindDt:
		return vm.frame.Curr[sdoffset.Dt]
	case sdir.KindModuleInput:
		return vm.frame.ModuleInputs[e.Offset]
	case sdir.KindStaticSubscript:
		return vm.frame.Curr[e.Offset+e.View.OffsetAt(idx)]
	case sdir.KindTempArray:
		return vm.frame.Temps[e.TempID][e.View.OffsetAt(idx)]
	case sdir.KindOp2:
		a := vm.arrayEval(e.Left, idx)
		b := vm.arrayEval(e.Right, idx)
		return applyBinOp(binOpCodeOf(e.Op2), a, b)
	case sdir.KindOp1:
		switch e.Op1 {
		case sdir.OpTranspose:
			rev := make([]int, len(idx))
			for i, v := range idx {
				rev[len(idx)-1-i] = v
			}
			return vm.arrayEval(e.Inner, rev)
		default: // OpNot
			if vm.arrayEval(e.Inner, idx) == 0 {
				return 1
			}
			return 0
		}
	case sdir.KindIf:
		if vm.arrayEval(e.Cond, idx) != 0 {
			return vm.arrayEval(e.Then, idx)
		}
		return vm.arrayEval(e.Else, idx)
	case sdir.KindApp:
		args := make([]float64, len(e.Args))
		for i, a := range e.Args {
			args[i] = vm.arrayEval(a, idx)
		}
		v, _ := applyScalarBuiltin(e.Fn, args, vm.frame)
		return v
	default:
		return 0
	}
}

func binOpCodeOf(op sdir.BinaryOp) sdbc.BinOpCode {
	switch op {
	case sdir.OpAdd:
		return sdbc.BinAdd
	case sdir.OpSub:
		return sdbc.BinSub
	case sdir.OpMul:
		return sdbc.BinMul
	case sdir.OpDiv:
		return sdbc.BinDiv
	case sdir.OpMod:
		return sdbc.BinMod
	case sdir.OpExp:
		return sdbc.BinExp
	case sdir.OpEq:
		return sdbc.BinEq
	case sdir.OpNeq:
		return sdbc.BinNeq
	case sdir.OpGt:
		return sdbc.BinGt
	case sdir.OpGte:
		return sdbc.BinGte
	case sdir.OpLt:
		return sdbc.BinLt
	case sdir.OpLte:
		return sdbc.BinLte
	case sdir.OpAnd:
		return sdbc.BinAnd
	case sdir.OpOr:
		return sdbc.BinOr
	}
	return sdbc.BinAdd
}

func applyBinOp(op sdbc.BinOpCode, a, b float64) float64 {
	switch op {
	case sdbc.BinAdd:
		return a + b
	case sdbc.BinSub:
		return a - b
	case sdbc.BinMul:
		return a * b
	case sdbc.BinDiv:
		if b == 0 {
			return 0
		}
		return a / b
	case sdbc.BinMod:
		return math.Mod(a, b)
	case sdbc.BinExp:
		return math.Pow(a, b)
	case sdbc.BinEq:
		return boolF(a == b)
	case sdbc.BinNeq:
		return boolF(a != b)
	case sdbc.BinGt:
		return boolF(a > b)
	case sdbc.BinGte:
		return boolF(a >= b)
	case sdbc.BinLt:
		return boolF(a < b)
	case sdbc.BinLte:
		return boolF(a <= b)
	case sdbc.BinAnd:
		return boolF(a != 0 && b != 0)
	case sdbc.BinOr:
		return boolF(a != 0 || b != 0)
	}
	return 0
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func applyReduction(fn sdir.Builtin, vals []float64) (float64, error) {
	switch fn {
	case sdir.BFSize:
		return float64(len(vals)), nil
	case sdir.BFSum:
		var s float64
		for _, v := range vals {
			s += v
		}
		return s, nil
	case sdir.BFMean:
		if len(vals) == 0 {
			return 0, nil
		}
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals)), nil
	case sdir.BFStddev:
		if len(vals) == 0 {
			return 0, nil
		}
		var s float64
		for _, v := range vals {
			s += v
		}
		mean := s / float64(len(vals))
		var sq float64
		for _, v := range vals {
			d := v - mean
			sq += d * d
		}
		return math.Sqrt(sq / float64(len(vals))), nil
	case sdir.BFMinArray:
		if len(vals) == 0 {
			return 0, nil
		}
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	case sdir.BFMaxArray:
		if len(vals) == 0 {
			return 0, nil
		}
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}
	return 0, sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeBadBuiltinArgs,
		"builtin %d is not a reduction", fn)
}

func applyScalarBuiltin(fn sdir.Builtin, args []float64, frame *Frame) (float64, error) {
	arg0 := func() float64 {
		if len(args) > 0 {
			return args[0]
		}
		return 0
	}
	switch fn {
	case sdir.BFAbs:
		return math.Abs(arg0()), nil
	case sdir.BFSign:
		v := arg0()
		switch {
		case v > 0:
			return 1, nil
		case v < 0:
			return -1, nil
		default:
			return 0, nil
		}
	case sdir.BFSqrt:
		return math.Sqrt(arg0()), nil
	case sdir.BFExp:
		return math.Exp(arg0()), nil
	case sdir.BFLn:
		return math.Log(arg0()), nil
	case sdir.BFLog10:
		return math.Log10(arg0()), nil
	case sdir.BFSin:
		return math.Sin(arg0()), nil
	case sdir.BFCos:
		return math.Cos(arg0()), nil
	case sdir.BFTan:
		return math.Tan(arg0()), nil
	case sdir.BFArcsin:
		return math.Asin(arg0()), nil
	case sdir.BFArccos:
		return math.Acos(arg0()), nil
	case sdir.BFArctan:
		return math.Atan(arg0()), nil
	case sdir.BFInt:
		return math.Trunc(arg0()), nil
	case sdir.BFMinScalar:
		if len(args) == 0 {
			return 0, nil
		}
		m := args[0]
		for _, v := range args[1:] {
			if v < m {
				m = v
			}
		}
		return m, nil
	case sdir.BFMaxScalar:
		if len(args) == 0 {
			return 0, nil
		}
		m := args[0]
		for _, v := range args[1:] {
			if v > m {
				m = v
			}
		}
		return m, nil
	case sdir.BFStep:
		// STEP(height, step_time): height once time >= step_time, else 0.
		if len(args) < 2 {
			return 0, nil
		}
		height, stepTime := args[0], args[1]
		if frame.Curr[sdoffset.Time] >= stepTime {
			return height, nil
		}
		return 0, nil
	case sdir.BFPulse:
		// PULSE(volume, first_time, interval): magnitude/dt during the
		// window, repeating every interval if interval > 0.
		if len(args) < 2 {
			return 0, nil
		}
		volume, firstTime := args[0], args[1]
		interval := 0.0
		if len(args) > 2 {
			interval = args[2]
		}
		t := frame.Curr[sdoffset.Time]
		dt := frame.Curr[sdoffset.Dt]
		if t < firstTime {
			return 0, nil
		}
		if interval > 0 {
			since := math.Mod(t-firstTime, interval)
			if since >= dt {
				return 0, nil
			}
		} else if t >= firstTime+dt {
			return 0, nil
		}
		if dt == 0 {
			return 0, nil
		}
		return volume / dt, nil
	case sdir.BFRamp:
		// RAMP(slope, start_time[, end_time])
		if len(args) < 2 {
			return 0, nil
		}
		slope, start := args[0], args[1]
		t := frame.Curr[sdoffset.Time]
		if t < start {
			return 0, nil
		}
		if len(args) > 2 {
			end := args[2]
			if t > end {
				return slope * (end - start), nil
			}
		}
		return slope * (t - start), nil
	case sdir.BFSafediv:
		if len(args) < 2 {
			return 0, nil
		}
		a, b := args[0], args[1]
		if b == 0 {
			if len(args) > 2 {
				return args[2], nil
			}
			return 0, nil
		}
		return a / b, nil
	case sdir.BFTime:
		return frame.Curr[sdoffset.Time], nil
	case sdir.BFTimeStep:
		return frame.Curr[sdoffset.Dt], nil
	case sdir.BFInitialTime:
		return frame.Curr[sdoffset.InitialTime], nil
	case sdir.BFFinalTime:
		return frame.Curr[sdoffset.FinalTime], nil
	case sdir.BFPi:
		return math.Pi, nil
	case sdir.BFInf:
		return math.Inf(1), nil
	}
	return 0, sdlerrors.New(sdlerrors.KindVariable, sdlerrors.CodeBadBuiltinArgs,
		"builtin %d not valid in scalar context", fn)
}
