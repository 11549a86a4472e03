// Package bytecode defines the compiled program and opcode shapes
// executed by bytecode/vm under the quotas enforced by bytecode/governor
// (spec §3 "Bytecode Program" / §4.5).
package bytecode

// Opcode identifies an instruction handler. The set is the minimum the
// spec requires (§4.5); each has a statically known net stack delta,
// enforced by the VM rather than declared here as data.
type Opcode int

const (
	OpPushNumber Opcode = iota
	OpPushString
	OpPushBool
	OpPushNull
	OpPop
	OpLoadVar
	OpStoreVar
	OpBinaryOp
	OpUnaryOp
	OpJump
	OpJumpIfFalse
	OpCall
	OpReturn
	OpHalt
)

// BinOp is the operator subcode carried in a binary-op instruction's
// operand.
type BinOp int32

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinLt
	BinLe
	BinGt
	BinGe
	BinEq
	BinNeq
	BinAnd
	BinOr
)

// UnOp is the operator subcode carried in a unary-op instruction's operand.
type UnOp int32

const (
	UnNeg UnOp = iota
	UnNot
)

// Instruction is one program slot. Operand is interpreted per Op: a
// string-pool index for OpPushString, a variable index for
// OpLoadVar/OpStoreVar, a BinOp/UnOp subcode, a jump target pc, or a
// function-table index (with Operand2 as the argument count) for OpCall,
// or the literal 0/1 for OpPushBool. Num carries the literal for
// OpPushNumber. This is the union the spec describes, laid out as distinct
// fields rather than a raw byte union, since Go has no first-class
// untagged union and the opcode itself is already the discriminant.
type Instruction struct {
	Op       Opcode
	Operand  int32
	Operand2 int32
	Num      float32
}

// Program is a fixed-once-built bytecode program: an instruction array
// plus the string/variable/property/function tables it references.
// Capacities are stamped at allocation time by the governor (§4.7); this
// type only carries the populated contents.
type Program struct {
	Instructions []Instruction
	Strings      []string
	Vars         []string
	Props        []string
	Funcs        []string
}

// NewProgram builds a Program from already-governor-approved capacities.
// The slices are allocated at full capacity so later population never
// reallocates (and so the governor's byte accounting, done at allocation
// time, stays accurate for the program's lifetime).
func NewProgram(instrCap, strCap, varCap, propCap, fnCap int) *Program {
	return &Program{
		Instructions: make([]Instruction, 0, instrCap),
		Strings:      make([]string, 0, strCap),
		Vars:         make([]string, 0, varCap),
		Props:        make([]string, 0, propCap),
		Funcs:        make([]string, 0, fnCap),
	}
}
