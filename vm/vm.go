package vm

import (
	"fmt"
	"os"
)

// programEnd is the dispatch-loop sentinel meaning "stop" (spec.md §4.8).
const programEnd = -1

// Handler executes one instruction and returns the next program counter, or
// programEnd to stop the dispatch loop.
type Handler func(vm *VM, pc int, instr Instruction) (int, error)

// commandTable is the constant-time, opcode-indexed dispatch table
// (spec.md §4.8, §9: "replace reflective class→handler lookup with a fixed
// array indexed by opcode"). It is built once by the handler registration
// files' init() functions and never mutated afterward.
var commandTable [0x0500]Handler

// Syscalls is the interface the VM dispatches SYSCALL instructions into.
// Package vmsys implements it; it is declared here so package vm does not
// depend on package vmsys (the dependency runs the other way: vmsys only
// needs the Value/OperandStack/VMError types already in this package).
type Syscalls interface {
	Dispatch(code uint16, stack *OperandStack) error
}

// Options configures a VM instance.
type Options struct {
	Debug bool
}

// VM is one bytecode program execution: a program counter, an operand
// stack, a call stack with per-frame locals, a shared global region, and a
// syscall dispatcher. Every registry instance is owned by the VM, not by
// package-level state, so tests can construct independent VMs (spec.md §9
// "static global tables" redesign flag).
type VM struct {
	program   *Program
	pc        int
	operands  *OperandStack
	calls     *CallStack
	globals   *GlobalRegion
	syscalls  Syscalls
	functions *FunctionResolver
	options   Options

	errno  int
	errstr string
}

// FunctionResolver maps a function's entry address to its name, so frames
// pushed by CALL can be labelled without reaching back into the code
// generator. It carries no parameter counts; CALL does not check nArgs
// against the callee.
type FunctionResolver struct {
	nameAtAddress map[int]string
}

// NewFunctionResolver builds a resolver from an address→name map, typically
// produced by the program builder at codegen time.
func NewFunctionResolver(nameAtAddress map[int]string) *FunctionResolver {
	return &FunctionResolver{nameAtAddress: nameAtAddress}
}

// NameAt returns the function name whose body starts at addr, if any.
func (r *FunctionResolver) NameAt(addr int) (string, bool) {
	if r == nil {
		return "", false
	}
	name, ok := r.nameAtAddress[addr]
	return name, ok
}

// New constructs a VM ready to run program, with its own globals/call stack
// and the given syscall dispatcher.
func New(program *Program, syscalls Syscalls, resolver *FunctionResolver, opts Options) *VM {
	globals := NewGlobalRegion()
	return &VM{
		program:   program,
		operands:  NewOperandStack(64),
		calls:     NewCallStack(globals),
		globals:   globals,
		syscalls:  syscalls,
		functions: resolver,
		options:   opts,
	}
}

func (vm *VM) debugf(format string, args ...any) {
	if vm.options.Debug {
		fmt.Fprintf(os.Stderr, "[vm] "+format+"\n", args...)
	}
}

// Locals returns the current frame's local variable store.
func (vm *VM) Locals() *LocalVariableStore {
	return vm.calls.Peek().Locals
}

// Operands returns the VM's operand stack.
func (vm *VM) Operands() *OperandStack {
	return vm.operands
}

// Globals returns the VM's shared global region.
func (vm *VM) Globals() *GlobalRegion {
	return vm.globals
}

// SetErrno records the last syscall error, mirroring the process-wide
// errno/errstr pair spec.md §4.10/§7 describes.
func (vm *VM) SetErrno(code int, message string) {
	vm.errno, vm.errstr = code, message
}

// Errno returns the last syscall error code.
func (vm *VM) Errno() int { return vm.errno }

// Errstr returns the last syscall error message.
func (vm *VM) Errstr() string { return vm.errstr }

// Run executes the program to completion: HALT, or a RET that would pop the
// root frame. It returns a non-nil *VMError on any fatal condition.
func (vm *VM) Run() error {
	vm.pc = 0
	for {
		if vm.pc < 0 || vm.pc >= vm.program.Len() {
			return newError(ResolutionError, "program counter %d out of range", vm.pc)
		}
		instr := vm.program.Instructions[vm.pc]
		handler := commandTable[instr.Opcode]
		if handler == nil {
			return newError(ResolutionError, "unsupported opcode %s", instr.Opcode).WithLocation(vm.pc, instr.Opcode)
		}

		vm.debugf("pc=%d %s %v", vm.pc, instr.Opcode, instr.Operands)
		next, err := handler(vm, vm.pc, instr)
		if err != nil {
			if verr, ok := err.(*VMError); ok {
				return verr.WithLocation(vm.pc, instr.Opcode)
			}
			return newError(IoError, "%s", err).WithLocation(vm.pc, instr.Opcode)
		}
		if next == programEnd {
			return nil
		}
		vm.pc = next
	}
}
