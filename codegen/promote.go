package codegen

import (
	"fmt"

	"github.com/chlang-rt/chvm/ir"
	"github.com/chlang-rt/chvm/vm"
)

// toVMKind maps an ir.ScalarKind to its vm.ScalarKind counterpart. The two
// enums are declared independently (package vm must not import package ir,
// spec.md §1's frontend/VM boundary), so every crossing needs this explicit
// translation. KindVoid and KindR have no vm.ScalarKind counterpart: callers
// must never ask for one.
func toVMKind(k ir.ScalarKind) vm.ScalarKind {
	switch k {
	case ir.KindB:
		return vm.KindB
	case ir.KindS:
		return vm.KindS
	case ir.KindI:
		return vm.KindI
	case ir.KindL:
		return vm.KindL
	case ir.KindF:
		return vm.KindF
	case ir.KindD:
		return vm.KindD
	}
	panic(fmt.Sprintf("codegen: %s has no vm scalar counterpart", k))
}

// toVMComparator maps an ir.Comparator to its vm.Comparator counterpart,
// crossing the same independently-declared-enum boundary as toVMKind.
func toVMComparator(c ir.Comparator) vm.Comparator {
	switch c {
	case ir.CmpEq:
		return vm.CmpEq
	case ir.CmpNe:
		return vm.CmpNe
	case ir.CmpGt:
		return vm.CmpGt
	case ir.CmpGe:
		return vm.CmpGe
	case ir.CmpLt:
		return vm.CmpLt
	case ir.CmpLe:
		return vm.CmpLe
	}
	panic(fmt.Sprintf("codegen: unknown comparator %d", c))
}

// conversionOpcodes is the 30-entry X2Y table (spec.md §4.5): every ordered
// pair of distinct numeric kinds maps to exactly one conversion opcode.
// X2X is deliberately absent — the generator never emits a no-op coercion.
var conversionOpcodes = map[[2]ir.ScalarKind]vm.Opcode{
	{ir.KindB, ir.KindS}: vm.B2S, {ir.KindB, ir.KindI}: vm.B2I, {ir.KindB, ir.KindL}: vm.B2L, {ir.KindB, ir.KindF}: vm.B2F, {ir.KindB, ir.KindD}: vm.B2D,
	{ir.KindS, ir.KindB}: vm.S2B, {ir.KindS, ir.KindI}: vm.S2I, {ir.KindS, ir.KindL}: vm.S2L, {ir.KindS, ir.KindF}: vm.S2F, {ir.KindS, ir.KindD}: vm.S2D,
	{ir.KindI, ir.KindB}: vm.I2B, {ir.KindI, ir.KindS}: vm.I2S, {ir.KindI, ir.KindL}: vm.I2L, {ir.KindI, ir.KindF}: vm.I2F, {ir.KindI, ir.KindD}: vm.I2D,
	{ir.KindL, ir.KindB}: vm.L2B, {ir.KindL, ir.KindS}: vm.L2S, {ir.KindL, ir.KindI}: vm.L2I, {ir.KindL, ir.KindF}: vm.L2F, {ir.KindL, ir.KindD}: vm.L2D,
	{ir.KindF, ir.KindB}: vm.F2B, {ir.KindF, ir.KindS}: vm.F2S, {ir.KindF, ir.KindI}: vm.F2I, {ir.KindF, ir.KindL}: vm.F2L, {ir.KindF, ir.KindD}: vm.F2D,
	{ir.KindD, ir.KindB}: vm.D2B, {ir.KindD, ir.KindS}: vm.D2S, {ir.KindD, ir.KindI}: vm.D2I, {ir.KindD, ir.KindL}: vm.D2L, {ir.KindD, ir.KindF}: vm.D2F,
}

// conversionOpcode returns the opcode converting a value of kind from to
// kind to. It panics if from == to: the caller is responsible for skipping
// the conversion entirely in that case (spec.md §4.5).
func conversionOpcode(from, to ir.ScalarKind) vm.Opcode {
	op, ok := conversionOpcodes[[2]ir.ScalarKind{from, to}]
	if !ok {
		panic(fmt.Sprintf("codegen: no conversion opcode from %s to %s", from, to))
	}
	return op
}

// emitCoercion emits X2Y if the value currently on top of the operand stack
// is of kind from and the consumer needs kind to; it is a no-op when the
// kinds already match, matching spec.md §4.5's rule that X2X never appears.
func (b *Builder) emitCoercion(from, to ir.ScalarKind) {
	if from == to {
		return
	}
	b.Emit(conversionOpcode(from, to))
}
