package codegen

import (
	"testing"

	"github.com/chlang-rt/chvm/ir"
	"github.com/chlang-rt/chvm/vm"
)

func TestConversionOpcodeTableHasAllThirtyOrderedPairs(t *testing.T) {
	numeric := []ir.ScalarKind{ir.KindB, ir.KindS, ir.KindI, ir.KindL, ir.KindF, ir.KindD}
	count := 0
	for _, from := range numeric {
		for _, to := range numeric {
			if from == to {
				continue
			}
			op := conversionOpcode(from, to)
			if !op.Defined() {
				t.Errorf("conversionOpcode(%s,%s) = %s, not a defined opcode", from, to, op)
			}
			count++
		}
	}
	if count != 30 {
		t.Fatalf("expected 30 ordered pairs, exercised %d", count)
	}
}

func TestConversionOpcodeSelfPairPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic converting a kind to itself")
		}
	}()
	conversionOpcode(ir.KindI, ir.KindI)
}

func TestToVMKindCoversEverySixScalarKinds(t *testing.T) {
	cases := map[ir.ScalarKind]vm.ScalarKind{
		ir.KindB: vm.KindB, ir.KindS: vm.KindS, ir.KindI: vm.KindI,
		ir.KindL: vm.KindL, ir.KindF: vm.KindF, ir.KindD: vm.KindD,
	}
	for irKind, wantVMKind := range cases {
		if got := toVMKind(irKind); got != wantVMKind {
			t.Errorf("toVMKind(%s) = %s, want %s", irKind, got, wantVMKind)
		}
	}
}

func TestToVMKindPanicsOnVoid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic mapping KindVoid to a vm.ScalarKind")
		}
	}()
	toVMKind(ir.KindVoid)
}

func TestToVMComparatorRoundTrip(t *testing.T) {
	cases := []ir.Comparator{ir.CmpEq, ir.CmpNe, ir.CmpGt, ir.CmpGe, ir.CmpLt, ir.CmpLe}
	want := []vm.Comparator{vm.CmpEq, vm.CmpNe, vm.CmpGt, vm.CmpGe, vm.CmpLt, vm.CmpLe}
	for i, c := range cases {
		if got := toVMComparator(c); got != want[i] {
			t.Errorf("toVMComparator(%d) = %d, want %d", c, got, want[i])
		}
	}
}

func TestEmitCoercionSkipsNoOpConversion(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("f")
	b.emitCoercion(ir.KindI, ir.KindI)
	if len(b.instructions) != 0 {
		t.Errorf("emitCoercion(I,I) emitted %d instructions, want 0", len(b.instructions))
	}
	b.emitCoercion(ir.KindI, ir.KindL)
	if len(b.instructions) != 1 || b.instructions[0].Opcode != vm.I2L {
		t.Errorf("emitCoercion(I,L) emitted %v, want one I2L", b.instructions)
	}
}
