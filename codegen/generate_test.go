package codegen

import (
	"strings"
	"testing"

	"github.com/chlang-rt/chvm/ir"
	"github.com/chlang-rt/chvm/vm"
)

// runProgram assembles functions into a vm.Program and executes it on a
// fresh VM with no syscall layer, returning the VM (whose operand stack the
// caller inspects) and any fatal error. These tests exercise the generator and the VM together,
// since the generator's correctness is only observable by running what it
// emits.
func runProgram(t *testing.T, functions []*ir.Function) (*vm.VM, error) {
	t.Helper()
	ft := NewFunctionTable()
	for _, fn := range functions {
		if err := ft.Register(fn.Name, fn.ReturnKind, fn.ParamKinds); err != nil {
			t.Fatalf("Register(%s) failed: %v", fn.Name, err)
		}
	}
	gt := NewGlobalTable()
	program, resolver, err := GenerateProgram(functions, ft, gt)
	if err != nil {
		t.Fatalf("GenerateProgram failed: %v", err)
	}
	machine := vm.New(program, nil, resolver, vm.Options{})
	return machine, machine.Run()
}

// TestAddAndReturn is the literal "add two ints and return" scenario:
// main calls add(2, 3) and halts with 5 on top of the operand stack.
func TestAddAndReturn(t *testing.T) {
	add := &ir.Function{
		Name:       "add",
		Params:     []ir.Register{0, 1},
		ParamKinds: []ir.ScalarKind{ir.KindI, ir.KindI},
		ReturnKind: ir.KindI,
		Body: []ir.Instruction{
			ir.BinaryOp{Op: ir.OpAdd, Dst: 2, Lhs: 0, Rhs: 1, Kind: ir.KindI},
			ir.Return{Value: regPtr(2)},
		},
	}
	main := &ir.Function{
		Name:       "main",
		ReturnKind: ir.KindI,
		Body: []ir.Instruction{
			ir.LoadConst{Dst: 0, Value: ir.Constant{Kind: ir.KindI, Int: 2}},
			ir.LoadConst{Dst: 1, Value: ir.Constant{Kind: ir.KindI, Int: 3}},
			ir.Call{Dst: regPtr(2), Callee: "add", Args: []ir.Register{0, 1}},
			ir.Return{Value: regPtr(2)},
		},
	}

	machine, err := runProgram(t, []*ir.Function{main, add})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, err := machine.Operands().Pop()
	if err != nil {
		t.Fatalf("expected a value on the operand stack: %v", err)
	}
	if top.IntValue() != 5 {
		t.Errorf("add(2,3) = %d, want 5", top.IntValue())
	}
}

// TestIntLongWidening exercises numeric coercion insertion: an I operand
// added against an L operand must be widened to L before ADD, the kind
// the BinaryOp carries as its width tag.
func TestIntLongWidening(t *testing.T) {
	main := &ir.Function{
		Name:       "main",
		ReturnKind: ir.KindL,
		Body: []ir.Instruction{
			ir.LoadConst{Dst: 0, Value: ir.Constant{Kind: ir.KindI, Int: 100}},
			ir.LoadConst{Dst: 1, Value: ir.Constant{Kind: ir.KindL, Int: 5_000_000_000}},
			ir.BinaryOp{Op: ir.OpAdd, Dst: 2, Lhs: 0, Rhs: 1, Kind: ir.KindL},
			ir.Return{Value: regPtr(2)},
		},
	}
	machine, err := runProgram(t, []*ir.Function{main})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, err := machine.Operands().Pop()
	if err != nil {
		t.Fatalf("expected a value on the operand stack: %v", err)
	}
	if top.IntValue() != 5_000_000_100 {
		t.Errorf("100+5000000000 = %d, want 5000000100", top.IntValue())
	}
}

// TestDivisionByZeroIsFatalArithmeticError exercises the "no swallowed
// errors" invariant: an integral division by zero halts execution with a
// tagged ArithmeticError, not a panic or a silently wrong result.
func TestDivisionByZeroIsFatalArithmeticError(t *testing.T) {
	main := &ir.Function{
		Name: "main",
		Body: []ir.Instruction{
			ir.LoadConst{Dst: 0, Value: ir.Constant{Kind: ir.KindI, Int: 10}},
			ir.LoadConst{Dst: 1, Value: ir.Constant{Kind: ir.KindI, Int: 0}},
			ir.BinaryOp{Op: ir.OpDiv, Dst: 2, Lhs: 0, Rhs: 1, Kind: ir.KindI},
			ir.Return{},
		},
	}
	_, err := runProgram(t, []*ir.Function{main})
	if err == nil {
		t.Fatal("expected a fatal error dividing by zero")
	}
	verr, ok := err.(*vm.VMError)
	if !ok {
		t.Fatalf("error %v is not a *vm.VMError", err)
	}
	if verr.Kind != vm.ArithmeticError {
		t.Errorf("error kind = %s, want ArithmeticError", verr.Kind)
	}
	if !strings.Contains(verr.Error(), "at pc=") {
		t.Errorf("error message %q missing pc location", verr.Error())
	}
}

// TestCountingLoop exercises Label/CondJump/Jump: sum 1..5 with a
// decrementing counter, landing on 15.
func TestCountingLoop(t *testing.T) {
	const (
		rN     ir.Register = 0
		rSum   ir.Register = 1
		rOne   ir.Register = 2
		rZero  ir.Register = 3
		rCond  ir.Register = 4
		loopTop            = 0
		loopEnd            = 1
	)
	main := &ir.Function{
		Name: "main",
		Body: []ir.Instruction{
			ir.LoadConst{Dst: rN, Value: ir.Constant{Kind: ir.KindI, Int: 5}},
			ir.LoadConst{Dst: rSum, Value: ir.Constant{Kind: ir.KindI, Int: 0}},
			ir.LoadConst{Dst: rOne, Value: ir.Constant{Kind: ir.KindI, Int: 1}},
			ir.LoadConst{Dst: rZero, Value: ir.Constant{Kind: ir.KindI, Int: 0}},
			ir.Label{ID: loopTop},
			ir.CondJump{Cmp: ir.CmpLe, Lhs: rN, Rhs: rZero, Kind: ir.KindI, Label: loopEnd},
			ir.BinaryOp{Op: ir.OpAdd, Dst: rSum, Lhs: rSum, Rhs: rN, Kind: ir.KindI},
			ir.BinaryOp{Op: ir.OpSub, Dst: rN, Lhs: rN, Rhs: rOne, Kind: ir.KindI},
			ir.Jump{Label: loopTop},
			ir.Label{ID: loopEnd},
			ir.Return{Value: regPtr(rSum)},
		},
	}
	machine, err := runProgram(t, []*ir.Function{main})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, err := machine.Operands().Pop()
	if err != nil {
		t.Fatalf("expected a value on the operand stack: %v", err)
	}
	if top.IntValue() != 15 {
		t.Errorf("sum 1..5 = %d, want 15", top.IntValue())
	}
}

// TestCrossFunctionGlobal exercises LoadGlobal/StoreGlobal: one function
// writes a shared global, another reads it back, proving both share the
// same slot regardless of function-local slot numbering.
func TestCrossFunctionGlobal(t *testing.T) {
	setter := &ir.Function{
		Name: "setCounter",
		Body: []ir.Instruction{
			ir.LoadConst{Dst: 0, Value: ir.Constant{Kind: ir.KindI, Int: 42}},
			ir.StoreGlobal{Src: 0, Name: "counter"},
			ir.Return{},
		},
	}
	main := &ir.Function{
		Name:       "main",
		ReturnKind: ir.KindI,
		Body: []ir.Instruction{
			ir.Call{Callee: "setCounter"},
			ir.LoadGlobal{Dst: 0, Name: "counter", Kind: ir.KindI},
			ir.Return{Value: regPtr(0)},
		},
	}
	machine, err := runProgram(t, []*ir.Function{main, setter})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, err := machine.Operands().Pop()
	if err != nil {
		t.Fatalf("expected a value on the operand stack: %v", err)
	}
	if top.IntValue() != 42 {
		t.Errorf("global counter read back as %d, want 42", top.IntValue())
	}
}

// TestMainIsAlwaysOrderedFirst confirms spec.md §4.6's program ordering
// guarantee holds even when main is declared last in the input slice.
func TestMainIsAlwaysOrderedFirst(t *testing.T) {
	helper := &ir.Function{Name: "helper", Body: []ir.Instruction{ir.Return{}}}
	main := &ir.Function{Name: "main", Body: []ir.Instruction{ir.Return{}}}
	ordered := orderWithMainFirst([]*ir.Function{helper, main})
	if ordered[0].Name != "main" {
		t.Fatalf("orderWithMainFirst put %q first, want main", ordered[0].Name)
	}
}

// TestDuplicateLabelIsAGenerationError confirms spec.md §4.3/§8's "a label
// defined twice" case fails the build instead of silently rebinding the
// earlier definition.
func TestDuplicateLabelIsAGenerationError(t *testing.T) {
	main := &ir.Function{
		Name: "main",
		Body: []ir.Instruction{
			ir.Label{ID: 1},
			ir.Label{ID: 1},
			ir.Return{},
		},
	}
	ft := NewFunctionTable()
	if err := ft.Register("main", ir.KindVoid, nil); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	gt := NewGlobalTable()
	_, _, err := GenerateProgram([]*ir.Function{main}, ft, gt)
	if err == nil {
		t.Fatal("expected an error generating a function with a duplicate label")
	}
	if !strings.Contains(err.Error(), "label 1") {
		t.Errorf("error = %q, want it to name the duplicated label", err.Error())
	}
}

// TestUndeclaredCalleeIsAGenerationError confirms a Call to a function the
// FunctionTable never saw is rejected at generation time rather than
// producing a dangling CALL.
func TestUndeclaredCalleeIsAGenerationError(t *testing.T) {
	main := &ir.Function{
		Name: "main",
		Body: []ir.Instruction{
			ir.Call{Callee: "neverDeclared"},
			ir.Return{},
		},
	}
	ft := NewFunctionTable()
	if err := ft.Register("main", ir.KindVoid, nil); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, _, err := GenerateProgram([]*ir.Function{main}, ft, NewGlobalTable())
	if err == nil {
		t.Fatal("expected an error calling an undeclared function")
	}
}

func regPtr(r ir.Register) *ir.Register { return &r }
