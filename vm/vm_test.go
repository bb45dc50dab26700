package vm

import (
	"math"
	"strconv"
	"strings"
	"testing"
)

func program(instrs ...Instruction) *Program {
	return &Program{Instructions: instrs}
}

func newTestVM(p *Program) *VM {
	return New(p, nil, NewFunctionResolver(nil), Options{})
}

func TestAddTwoIntsPushesResult(t *testing.T) {
	p := program(
		Instruction{Opcode: OpcodePush(KindI), Operands: []string{"2"}},
		Instruction{Opcode: OpcodePush(KindI), Operands: []string{"3"}},
		Instruction{Opcode: OpcodeAdd(KindI)},
		Instruction{Opcode: Halt},
	)
	m := newTestVM(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, err := m.Operands().Pop()
	if err != nil {
		t.Fatalf("expected a result on the stack: %v", err)
	}
	if top.IntValue() != 5 {
		t.Errorf("2+3 = %d, want 5", top.IntValue())
	}
}

func TestIntegerDivisionByZeroIsArithmeticError(t *testing.T) {
	p := program(
		Instruction{Opcode: OpcodePush(KindI), Operands: []string{"1"}},
		Instruction{Opcode: OpcodePush(KindI), Operands: []string{"0"}},
		Instruction{Opcode: OpcodeDiv(KindI)},
		Instruction{Opcode: Halt},
	)
	err := newTestVM(p).Run()
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	verr := err.(*VMError)
	if verr.Kind != ArithmeticError {
		t.Errorf("kind = %s, want ArithmeticError", verr.Kind)
	}
}

func TestFloatDivisionByZeroProducesInf(t *testing.T) {
	p := program(
		Instruction{Opcode: OpcodePush(KindD), Operands: []string{"1"}},
		Instruction{Opcode: OpcodePush(KindD), Operands: []string{"0"}},
		Instruction{Opcode: OpcodeDiv(KindD)},
		Instruction{Opcode: Halt},
	)
	m := newTestVM(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, _ := m.Operands().Pop()
	if !math.IsInf(top.FloatValue(), 1) {
		t.Errorf("1.0/0.0 = %v, want +Inf", top.FloatValue())
	}
}

func TestCompareOpcodePushesBoolWithZeroOperands(t *testing.T) {
	p := program(
		Instruction{Opcode: OpcodePush(KindI), Operands: []string{"5"}},
		Instruction{Opcode: OpcodePush(KindI), Operands: []string{"5"}},
		Instruction{Opcode: OpcodeCE(KindI)}, // zero operands: push-bool form
		Instruction{Opcode: Halt},
	)
	m := newTestVM(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, _ := m.Operands().Pop()
	if !top.BoolValue() {
		t.Error("5 == 5 should be true")
	}
}

func TestCompareOpcodeBranchesWithOneOperand(t *testing.T) {
	// 5 < 10 is true, so the branch to address 5 (the PUSH of 99) is taken,
	// skipping the PUSH of -1 at address 3.
	p := program(
		/*0*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"5"}},
		/*1*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"10"}},
		/*2*/ Instruction{Opcode: OpcodeCL(KindI), Operands: []string{"5"}}, // one operand: branch form
		/*3*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"-1"}},
		/*4*/ Instruction{Opcode: Halt},
		/*5*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"99"}},
		/*6*/ Instruction{Opcode: Halt},
	)
	m := newTestVM(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, _ := m.Operands().Pop()
	if top.IntValue() != 99 {
		t.Errorf("branch-taken result = %d, want 99", top.IntValue())
	}
}

func TestCallPushesFrameAndBindsArgsInOrder(t *testing.T) {
	// sub(a, b): LOAD a; LOAD b; I_SUB; RET (returns via operand stack).
	// Subtraction is not commutative, so a swapped binding would give 28.
	p := program(
		/*0 main*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"7"}},
		/*1*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"35"}},
		/*2*/ Instruction{Opcode: Call, Operands: []string{"4", "2"}},
		/*3*/ Instruction{Opcode: Halt},
		/*4 sub*/ Instruction{Opcode: OpcodeLoad(KindI), Operands: []string{"0"}},
		/*5*/ Instruction{Opcode: OpcodeLoad(KindI), Operands: []string{"1"}},
		/*6*/ Instruction{Opcode: OpcodeSub(KindI)},
		/*7*/ Instruction{Opcode: Ret},
	)
	m := newTestVM(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, _ := m.Operands().Pop()
	if top.IntValue() != -28 {
		t.Errorf("sub(7,35) = %d, want -28", top.IntValue())
	}
}

// TestRetOnRootFrameTerminatesProgram confirms spec.md §4.8's root-frame RET
// semantics: it ends the program like HALT, without being rejected as a
// StackError.
func TestRetOnRootFrameTerminatesProgram(t *testing.T) {
	p := program(Instruction{Opcode: Ret})
	if err := newTestVM(p).Run(); err != nil {
		t.Fatalf("RET on the root frame should terminate cleanly, got: %v", err)
	}
}

func TestOperandStackUnderflowIsStackError(t *testing.T) {
	p := program(Instruction{Opcode: Pop})
	err := newTestVM(p).Run()
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	if err.(*VMError).Kind != StackError {
		t.Errorf("kind = %s, want StackError", err.(*VMError).Kind)
	}
}

func TestUnknownOpcodeIsResolutionError(t *testing.T) {
	p := program(Instruction{Opcode: Opcode(0x04FE)})
	err := newTestVM(p).Run()
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	if err.(*VMError).Kind != ResolutionError {
		t.Errorf("kind = %s, want ResolutionError", err.(*VMError).Kind)
	}
}

func TestErrorMessageFormat(t *testing.T) {
	p := program(Instruction{Opcode: Pop})
	err := newTestVM(p).Run()
	msg := err.Error()
	if !strings.HasPrefix(msg, "StackError: ") {
		t.Errorf("message %q missing kind prefix", msg)
	}
	if !strings.Contains(msg, "at pc=0") {
		t.Errorf("message %q missing pc location", msg)
	}
	if !strings.Contains(msg, "opcode=POP") {
		t.Errorf("message %q missing opcode name", msg)
	}
}

func TestGlobalSlotSharedAcrossFrames(t *testing.T) {
	globalSlot := strconv.Itoa(GlobalSlotBase)
	p := program(
		/*0*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"9"}},
		/*1*/ Instruction{Opcode: OpcodeStore(KindI), Operands: []string{globalSlot}},
		/*2*/ Instruction{Opcode: Call, Operands: []string{"4", "0"}},
		/*3*/ Instruction{Opcode: Halt},
		/*4*/ Instruction{Opcode: OpcodeLoad(KindI), Operands: []string{globalSlot}},
		/*5*/ Instruction{Opcode: Ret},
	)
	m := newTestVM(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, _ := m.Operands().Pop()
	if top.IntValue() != 9 {
		t.Errorf("global read from a callee frame = %d, want 9", top.IntValue())
	}
}

func TestFrameLocalsDoNotLeakAcrossCalls(t *testing.T) {
	// The callee writes its own slot 0; main's slot 0 (set before the call,
	// read after it returns) must be unaffected, since each frame owns its
	// own locals.
	p := program(
		/*0*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"111"}},
		/*1*/ Instruction{Opcode: OpcodeStore(KindI), Operands: []string{"0"}},
		/*2*/ Instruction{Opcode: Call, Operands: []string{"5", "0"}},
		/*3*/ Instruction{Opcode: OpcodeLoad(KindI), Operands: []string{"0"}},
		/*4*/ Instruction{Opcode: Halt},
		/*5*/ Instruction{Opcode: OpcodePush(KindI), Operands: []string{"222"}},
		/*6*/ Instruction{Opcode: OpcodeStore(KindI), Operands: []string{"0"}},
		/*7*/ Instruction{Opcode: Ret},
	)
	m := newTestVM(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	top, _ := m.Operands().Pop()
	if top.IntValue() != 111 {
		t.Errorf("main's slot 0 after the call = %d, want 111 (no leakage from callee)", top.IntValue())
	}
}

