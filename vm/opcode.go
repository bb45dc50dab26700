// Package vm implements the register-free, stack-and-frames bytecode
// interpreter: a flat opcode-indexed dispatch table, a call stack with
// per-frame local slots, a shared global-slot region, and the textual image
// format used to interchange programs.
//
// The opcode set is grounded on the teacher's targets/vm/opcode.go
// (Opcode/opcodeNames pattern), expanded from one untyped arithmetic family
// to the six-scalar-kind-times-operation families spec.md §4.1 requires.
package vm

import "fmt"

// Opcode is a 32-bit instruction code. Only [0x0000, 0x04FF] is defined.
type Opcode int32

// Per-kind arithmetic & compare family. Each of the six scalar kinds
// (B,S,I,L,F,D) gets the same 19-opcode block at a fixed stride, so
// Opcode(kindBase(k) + opAdd) always means "<k>_ADD".
const (
	kindStride          = 0x14 // 20 slots reserved per kind, 19 used
	arithBase  Opcode    = 0x0000
)

// Offsets within a kind's block.
const (
	opAdd Opcode = iota
	opSub
	opMul
	opDiv
	opMod
	opNeg
	opInc
	opAnd
	opOr
	opXor
	opPush
	opLoad
	opStore
	opCE
	opCNE
	opCG
	opCGE
	opCL
	opCLE
)

// ScalarKind mirrors ir.ScalarKind's ordering for the six kinds that carry a
// typed opcode family. It is declared independently so package vm has no
// compile-time dependency on package ir: the VM only ever sees bytecode, not
// typed IR (spec.md §1 draws the line between the two subsystems there).
type ScalarKind uint8

const (
	KindB ScalarKind = iota
	KindS
	KindI
	KindL
	KindF
	KindD
)

func (k ScalarKind) String() string {
	switch k {
	case KindB:
		return "B"
	case KindS:
		return "S"
	case KindI:
		return "I"
	case KindL:
		return "L"
	case KindF:
		return "F"
	case KindD:
		return "D"
	}
	return "?"
}

func kindBase(k ScalarKind) Opcode {
	return arithBase + Opcode(k)*kindStride
}

// Typed arithmetic/compare opcode constructors, one per (kind, op) pair.
func OpcodeAdd(k ScalarKind) Opcode   { return kindBase(k) + opAdd }
func OpcodeSub(k ScalarKind) Opcode   { return kindBase(k) + opSub }
func OpcodeMul(k ScalarKind) Opcode   { return kindBase(k) + opMul }
func OpcodeDiv(k ScalarKind) Opcode   { return kindBase(k) + opDiv }
func OpcodeMod(k ScalarKind) Opcode   { return kindBase(k) + opMod }
func OpcodeNeg(k ScalarKind) Opcode   { return kindBase(k) + opNeg }
func OpcodeInc(k ScalarKind) Opcode   { return kindBase(k) + opInc }
func OpcodeAnd(k ScalarKind) Opcode   { return kindBase(k) + opAnd }
func OpcodeOr(k ScalarKind) Opcode    { return kindBase(k) + opOr }
func OpcodeXor(k ScalarKind) Opcode   { return kindBase(k) + opXor }
func OpcodePush(k ScalarKind) Opcode  { return kindBase(k) + opPush }
func OpcodeLoad(k ScalarKind) Opcode  { return kindBase(k) + opLoad }
func OpcodeStore(k ScalarKind) Opcode { return kindBase(k) + opStore }
func OpcodeCE(k ScalarKind) Opcode    { return kindBase(k) + opCE }
func OpcodeCNE(k ScalarKind) Opcode   { return kindBase(k) + opCNE }
func OpcodeCG(k ScalarKind) Opcode    { return kindBase(k) + opCG }
func OpcodeCGE(k ScalarKind) Opcode   { return kindBase(k) + opCGE }
func OpcodeCL(k ScalarKind) Opcode    { return kindBase(k) + opCL }
func OpcodeCLE(k ScalarKind) Opcode   { return kindBase(k) + opCLE }

// DecodeTyped reverses the typed-opcode constructors: given an opcode known
// to fall in the arithmetic/compare range, returns its kind and the
// within-kind offset.
func DecodeTyped(op Opcode) (ScalarKind, Opcode, bool) {
	if op < arithBase || op > 0x00BF {
		return 0, 0, false
	}
	rel := op - arithBase
	kind := ScalarKind(rel / kindStride)
	offset := rel % kindStride
	if offset > opCLE {
		return 0, 0, false
	}
	return kind, offset, true
}

// Scalar conversions, reference ops, stack ops, flow, register move and
// system opcodes. Conversions are named X2Y for X,Y in {B,S,I,L,F,D}; X2X
// never appears (spec.md §4.5: "no no-op conversions are ever emitted").
const (
	convBase Opcode = 0x00C0

	B2S Opcode = convBase + iota
	B2I
	B2L
	B2F
	B2D
	S2B
	S2I
	S2L
	S2F
	S2D
	I2B
	I2S
	I2L
	I2F
	I2D
	L2B
	L2S
	L2I
	L2F
	L2D
	F2B
	F2S
	F2I
	F2L
	F2D
	D2B
	D2S
	D2I
	D2L
	D2F
)

const (
	refBase Opcode = 0x00E0

	RPush Opcode = refBase + iota
	RLoad
	RStore
)

const (
	stackBase Opcode = 0x0100

	Pop Opcode = stackBase + iota
	Dup
	Swap
)

const (
	flowBase Opcode = 0x0200

	Jump Opcode = flowBase + iota
	Call
	Ret
	// Typed conditional compare-and-branch opcodes live at kindBase+cmp
	// within the arithmetic range's compare offsets (see CondBranch).
)

const (
	regBase Opcode = 0x0300

	Mov Opcode = regBase
)

const (
	sysBase Opcode = 0x0400

	Halt    Opcode = sysBase + iota
	Syscall
)

// CondBranch returns the typed conditional compare-and-branch opcode for a
// comparator at a given kind: it reuses the arithmetic range's compare
// offsets (opCE..opCLE) since spec.md §4.4 specifies CondJump as "BinaryOp
// (compare) followed by a typed conditional compare-and-branch instruction"
// — the branch variant of the same per-kind comparator family.
func CondBranch(k ScalarKind, cmp Comparator) Opcode {
	switch cmp {
	case CmpEq:
		return OpcodeCE(k)
	case CmpNe:
		return OpcodeCNE(k)
	case CmpGt:
		return OpcodeCG(k)
	case CmpGe:
		return OpcodeCGE(k)
	case CmpLt:
		return OpcodeCL(k)
	case CmpLe:
		return OpcodeCLE(k)
	}
	panic(fmt.Sprintf("vm: unknown comparator %d", cmp))
}

// Comparator mirrors ir.Comparator without depending on package ir.
type Comparator uint8

const (
	CmpEq Comparator = iota
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe
)

var opcodeNames = buildOpcodeNames()

func buildOpcodeNames() map[Opcode]string {
	names := make(map[Opcode]string)
	kinds := []ScalarKind{KindB, KindS, KindI, KindL, KindF, KindD}
	offsets := []struct {
		off  Opcode
		name string
	}{
		{opAdd, "ADD"}, {opSub, "SUB"}, {opMul, "MUL"}, {opDiv, "DIV"},
		{opMod, "MOD"}, {opNeg, "NEG"}, {opInc, "INC"}, {opAnd, "AND"},
		{opOr, "OR"}, {opXor, "XOR"}, {opPush, "PUSH"}, {opLoad, "LOAD"},
		{opStore, "STORE"}, {opCE, "CE"}, {opCNE, "CNE"}, {opCG, "CG"},
		{opCGE, "CGE"}, {opCL, "CL"}, {opCLE, "CLE"},
	}
	for _, k := range kinds {
		for _, o := range offsets {
			names[kindBase(k)+o.off] = k.String() + "_" + o.name
		}
	}
	conv := []Opcode{
		B2S, B2I, B2L, B2F, B2D,
		S2B, S2I, S2L, S2F, S2D,
		I2B, I2S, I2L, I2F, I2D,
		L2B, L2S, L2I, L2F, L2D,
		F2B, F2S, F2I, F2L, F2D,
		D2B, D2S, D2I, D2L, D2F,
	}
	convNames := []string{
		"B2S", "B2I", "B2L", "B2F", "B2D",
		"S2B", "S2I", "S2L", "S2F", "S2D",
		"I2B", "I2S", "I2L", "I2F", "I2D",
		"L2B", "L2S", "L2I", "L2F", "L2D",
		"F2B", "F2S", "F2I", "F2L", "F2D",
		"D2B", "D2S", "D2I", "D2L", "D2F",
	}
	for i, c := range conv {
		names[c] = convNames[i]
	}
	names[RPush] = "R_PUSH"
	names[RLoad] = "R_LOAD"
	names[RStore] = "R_STORE"
	names[Pop] = "POP"
	names[Dup] = "DUP"
	names[Swap] = "SWAP"
	names[Jump] = "JUMP"
	names[Call] = "CALL"
	names[Ret] = "RET"
	names[Mov] = "MOV"
	names[Halt] = "HALT"
	names[Syscall] = "SYSCALL"
	return names
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP(0x%04X)", int32(op))
}

// Defined reports whether op has a registered name, i.e. falls within one
// of the ranges spec.md §4.1 defines.
func (op Opcode) Defined() bool {
	_, ok := opcodeNames[op]
	return ok
}
