// Package vm implements the bytecode fetch-decode-execute loop (spec
// §4.5): a single dispatch table keyed on opcode, each handler returning
// the next program counter and a status, so the execution-time ceiling
// check is one hot-path conditional (spec §9 design note).
package vm

import (
	"mcpruntime/bytecode"
	"mcpruntime/bytecode/governor"
	"mcpruntime/value"
)

// Context is one program's per-execution state (spec §3 "Bytecode
// Context"): a reference to its program, a fixed-capacity value stack, a
// variables slice, a program counter, a halt flag, and an error slot.
type Context struct {
	Program *bytecode.Program
	Stack   []value.Value
	sp      int
	Vars    []value.Value
	PC      int
	Halted  bool
	Status  bytecode.Status
	ErrMsg  string

	alloc *governor.ContextAlloc
}

// NewContext builds a Context for prog with a stack sized from a
// governor-granted allocation and a variable slice sized to the
// program's declared variable table.
func NewContext(prog *bytecode.Program, alloc *governor.ContextAlloc) *Context {
	return &Context{
		Program: prog,
		Stack:   make([]value.Value, alloc.StackCap),
		Vars:    make([]value.Value, cap(prog.Vars)),
		alloc:   alloc,
	}
}

// Release returns the context's governor-tracked memory. Call once after
// execution completes (success or fault).
func (c *Context) Release(g *governor.Governor) {
	g.FreeContext(c.alloc)
	c.alloc = nil
}

func (c *Context) push(v value.Value) bool {
	if c.sp >= len(c.Stack) {
		return false
	}
	c.Stack[c.sp] = v
	c.sp++
	return true
}

func (c *Context) pop() (value.Value, bool) {
	if c.sp == 0 {
		return value.Null(), false
	}
	c.sp--
	return c.Stack[c.sp], true
}

// Top returns the value at the top of the stack after a successful run,
// the result the caller is meant to read (spec §4.5 "the success path
// leaves the result value at stack top").
func (c *Context) Top() (value.Value, bool) {
	if c.sp == 0 {
		return value.Null(), false
	}
	return c.Stack[c.sp-1], true
}

// NowFunc returns the current monotonic time in milliseconds; callers
// supply their platform's HAL clock.
type NowFunc func() int64

// Funcs resolves a function-table index (plus argument count, read by
// popping that many stack values) to a result Value. Unknown or
// out-of-range indices are the caller's responsibility to avoid — the
// program's function table is validated at load time, not dispatch time.
type Funcs func(index int, args []value.Value) value.Value

// Run executes ctx.Program from ctx.PC until halt, fault, or the
// execution-time ceiling. maxMs is the per-run time budget (spec §4.7
// max_execution_time_ms); the clock is sampled only at backward branches
// and at call, matching the spec's sampling points exactly so the common
// straight-line path pays no clock-read cost.
func Run(ctx *Context, prog *bytecode.Program, fns Funcs, now NowFunc, maxMs int) bytecode.Status {
	start := now()
	instrs := prog.Instructions

	for {
		if ctx.PC < 0 || ctx.PC >= len(instrs) {
			ctx.Status = bytecode.StatusFault
			ctx.ErrMsg = "program counter out of range"
			return ctx.Status
		}
		instr := instrs[ctx.PC]
		nextPC := ctx.PC + 1

		switch instr.Op {
		case bytecode.OpPushNumber:
			if !ctx.push(value.Float(instr.Num)) {
				return ctx.fault(bytecode.StatusStackOverflow, "push-number overflow")
			}
		case bytecode.OpPushString:
			if int(instr.Operand) < 0 || int(instr.Operand) >= len(prog.Strings) {
				return ctx.fault(bytecode.StatusFault, "string pool index out of range")
			}
			if !ctx.push(value.String(prog.Strings[instr.Operand])) {
				return ctx.fault(bytecode.StatusStackOverflow, "push-string overflow")
			}
		case bytecode.OpPushBool:
			if !ctx.push(value.Bool(instr.Operand != 0)) {
				return ctx.fault(bytecode.StatusStackOverflow, "push-bool overflow")
			}
		case bytecode.OpPushNull:
			if !ctx.push(value.Null()) {
				return ctx.fault(bytecode.StatusStackOverflow, "push-null overflow")
			}
		case bytecode.OpPop:
			if _, ok := ctx.pop(); !ok {
				return ctx.fault(bytecode.StatusStackUnderflow, "pop underflow")
			}
		case bytecode.OpLoadVar:
			idx := int(instr.Operand)
			if idx < 0 || idx >= len(ctx.Vars) {
				return ctx.fault(bytecode.StatusFault, "variable index out of range")
			}
			if !ctx.push(ctx.Vars[idx]) {
				return ctx.fault(bytecode.StatusStackOverflow, "load-var overflow")
			}
		case bytecode.OpStoreVar:
			idx := int(instr.Operand)
			if idx < 0 || idx >= len(ctx.Vars) {
				return ctx.fault(bytecode.StatusFault, "variable index out of range")
			}
			v, ok := ctx.pop()
			if !ok {
				return ctx.fault(bytecode.StatusStackUnderflow, "store-var underflow")
			}
			ctx.Vars[idx] = v
		case bytecode.OpBinaryOp:
			r, ok1 := ctx.pop()
			l, ok2 := ctx.pop()
			if !ok1 || !ok2 {
				return ctx.fault(bytecode.StatusStackUnderflow, "binary-op underflow")
			}
			if !ctx.push(binaryOp(bytecode.BinOp(instr.Operand), l, r)) {
				return ctx.fault(bytecode.StatusStackOverflow, "binary-op overflow")
			}
		case bytecode.OpUnaryOp:
			x, ok := ctx.pop()
			if !ok {
				return ctx.fault(bytecode.StatusStackUnderflow, "unary-op underflow")
			}
			if !ctx.push(unaryOp(bytecode.UnOp(instr.Operand), x)) {
				return ctx.fault(bytecode.StatusStackOverflow, "unary-op overflow")
			}
		case bytecode.OpJump:
			target := int(instr.Operand)
			if target <= ctx.PC {
				if st := checkTimeout(start, now, maxMs); st != bytecode.StatusOK {
					return ctx.fault(st, "execution time ceiling exceeded")
				}
			}
			nextPC = target
		case bytecode.OpJumpIfFalse:
			cond, ok := ctx.pop()
			if !ok {
				return ctx.fault(bytecode.StatusStackUnderflow, "jump-if-false underflow")
			}
			target := int(instr.Operand)
			if !truthy(cond) {
				if target <= ctx.PC {
					if st := checkTimeout(start, now, maxMs); st != bytecode.StatusOK {
						return ctx.fault(st, "execution time ceiling exceeded")
					}
				}
				nextPC = target
			}
		case bytecode.OpCall:
			if st := checkTimeout(start, now, maxMs); st != bytecode.StatusOK {
				return ctx.fault(st, "execution time ceiling exceeded")
			}
			fnIdx := int(instr.Operand)
			argc := int(instr.Operand2)
			if argc > ctx.sp {
				return ctx.fault(bytecode.StatusStackUnderflow, "call argument underflow")
			}
			args := make([]value.Value, argc)
			copy(args, ctx.Stack[ctx.sp-argc:ctx.sp])
			ctx.sp -= argc
			result := value.Null()
			if fns != nil {
				result = fns(fnIdx, args)
			}
			if !ctx.push(result) {
				return ctx.fault(bytecode.StatusStackOverflow, "call result overflow")
			}
		case bytecode.OpReturn:
			ctx.Status = bytecode.StatusOK
			ctx.Halted = true
			return ctx.Status
		case bytecode.OpHalt:
			ctx.Status = bytecode.StatusHalt
			ctx.Halted = true
			return ctx.Status
		default:
			return ctx.fault(bytecode.StatusUnknownOpcode, "unknown opcode")
		}

		ctx.PC = nextPC
	}
}

func (c *Context) fault(status bytecode.Status, msg string) bytecode.Status {
	c.Status = status
	c.ErrMsg = msg
	c.Halted = true
	return status
}

func checkTimeout(start int64, now NowFunc, maxMs int) bytecode.Status {
	if maxMs <= 0 {
		return bytecode.StatusOK
	}
	if now()-start >= int64(maxMs) {
		return bytecode.StatusTimeout
	}
	return bytecode.StatusOK
}

func truthy(v value.Value) bool {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNull:
		return false
	default:
		n, ok := v.Number()
		return ok && n != 0
	}
}

func binaryOp(op bytecode.BinOp, l, r value.Value) value.Value {
	switch op {
	case bytecode.BinEq:
		return value.Bool(l.Equal(r))
	case bytecode.BinNeq:
		return value.Bool(!l.Equal(r))
	case bytecode.BinAnd:
		return value.Bool(truthy(l) && truthy(r))
	case bytecode.BinOr:
		return value.Bool(truthy(l) || truthy(r))
	}

	ln, lok := l.Number()
	rn, rok := r.Number()
	if !lok || !rok {
		return value.Null()
	}
	switch op {
	case bytecode.BinAdd:
		return value.Float(float32(ln + rn))
	case bytecode.BinSub:
		return value.Float(float32(ln - rn))
	case bytecode.BinMul:
		return value.Float(float32(ln * rn))
	case bytecode.BinDiv:
		if rn == 0 {
			return value.Null()
		}
		return value.Float(float32(ln / rn))
	case bytecode.BinMod:
		if rn == 0 {
			return value.Null()
		}
		return value.Int(int32(int64(ln) % int64(rn)))
	case bytecode.BinLt:
		return value.Bool(ln < rn)
	case bytecode.BinLe:
		return value.Bool(ln <= rn)
	case bytecode.BinGt:
		return value.Bool(ln > rn)
	case bytecode.BinGe:
		return value.Bool(ln >= rn)
	default:
		return value.Null()
	}
}

func unaryOp(op bytecode.UnOp, x value.Value) value.Value {
	switch op {
	case bytecode.UnNot:
		return value.Bool(!truthy(x))
	case bytecode.UnNeg:
		n, ok := x.Number()
		if !ok {
			return value.Null()
		}
		return value.Float(float32(-n))
	default:
		return value.Null()
	}
}
