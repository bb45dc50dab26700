package codegen

import (
	"fmt"
	"strconv"

	"github.com/chlang-rt/chvm/vm"
)

// Builder assembles vm.Instructions into one linear vm.Program. It is
// grounded on the teacher's targets/vm/builder.go ProgramBuilder: emit now,
// patch forward references once their target address is known. Jump/label
// fixups resolve at EndFunction (labels are function-local); CALL fixups
// resolve at Build (callees may be defined later in program order).
type Builder struct {
	instructions []vm.Instruction

	currentFunc string
	labels      map[int]int // label id -> absolute address, reset per function
	jumpFixups  []jumpFixup

	funcEntry  map[string]int // function name -> entry address
	callFixups []callFixup
}

type jumpFixup struct {
	index   int
	labelID int
}

type callFixup struct {
	index  int
	callee string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		labels:    make(map[int]int),
		funcEntry: make(map[string]int),
	}
}

// BeginFunction records name's entry address as the next instruction to be
// emitted and resets the label scope.
func (b *Builder) BeginFunction(name string) {
	b.currentFunc = name
	b.funcEntry[name] = len(b.instructions)
	b.labels = make(map[int]int)
}

// EndFunction resolves every jump/branch fixup recorded since the matching
// BeginFunction. It is an error for a fixup to reference a label that was
// never emitted within the function (spec.md §4.6: "build() ... erroring on
// any label referenced but never defined").
func (b *Builder) EndFunction() error {
	for _, fx := range b.jumpFixups {
		addr, ok := b.labels[fx.labelID]
		if !ok {
			return fmt.Errorf("codegen: function %q references undefined label %d", b.currentFunc, fx.labelID)
		}
		b.instructions[fx.index].Operands[0] = strconv.Itoa(addr)
	}
	b.jumpFixups = nil
	b.currentFunc = ""
	return nil
}

// Emit appends one instruction and returns its address.
func (b *Builder) Emit(op vm.Opcode, operands ...string) int {
	idx := len(b.instructions)
	b.instructions = append(b.instructions, vm.Instruction{Opcode: op, Operands: operands})
	return idx
}

// EmitLabel marks the current address as labelID's target. It emits no
// instruction. Defining the same label twice within one function is an
// error (spec.md §4.3/§8: "fail if a label is referenced but never defined,
// or defined twice").
func (b *Builder) EmitLabel(labelID int) error {
	if _, ok := b.labels[labelID]; ok {
		return fmt.Errorf("codegen: function %q defines label %d twice", b.currentFunc, labelID)
	}
	b.labels[labelID] = len(b.instructions)
	return nil
}

// EmitJump appends an unconditional JUMP to labelID, patched at EndFunction.
func (b *Builder) EmitJump(labelID int) {
	idx := b.Emit(vm.Jump, "0")
	b.jumpFixups = append(b.jumpFixups, jumpFixup{index: idx, labelID: labelID})
}

// EmitCondBranch appends a typed compare-and-branch instruction (one of the
// vm.CondBranch family) targeting labelID, patched at EndFunction.
func (b *Builder) EmitCondBranch(op vm.Opcode, labelID int) {
	idx := b.Emit(op, "0")
	b.jumpFixups = append(b.jumpFixups, jumpFixup{index: idx, labelID: labelID})
}

// EmitCall appends a CALL to callee with nArgs already pushed on the operand
// stack. The target address is patched at Build, once every function's
// entry address is known.
func (b *Builder) EmitCall(callee string, nArgs int) {
	idx := b.Emit(vm.Call, "0", strconv.Itoa(nArgs))
	b.callFixups = append(b.callFixups, callFixup{index: idx, callee: callee})
}

// Build resolves every CALL fixup against the recorded function entry
// addresses and returns the finished program together with a resolver the
// VM uses to name frames in diagnostics.
func (b *Builder) Build() (*vm.Program, *vm.FunctionResolver, error) {
	nameAtAddress := make(map[int]string, len(b.funcEntry))
	for name, addr := range b.funcEntry {
		nameAtAddress[addr] = name
	}
	for _, fx := range b.callFixups {
		addr, ok := b.funcEntry[fx.callee]
		if !ok {
			return nil, nil, fmt.Errorf("codegen: call to undeclared function %q", fx.callee)
		}
		b.instructions[fx.index].Operands[0] = strconv.Itoa(addr)
	}
	program := &vm.Program{Instructions: b.instructions}
	return program, vm.NewFunctionResolver(nameAtAddress), nil
}

// EntryAddress returns the resolved entry address of a function already
// emitted via BeginFunction. Nothing in the generator calls it: execution
// starts at address 0 because GenerateProgram emits main first.
func (b *Builder) EntryAddress(name string) (int, bool) {
	addr, ok := b.funcEntry[name]
	return addr, ok
}
