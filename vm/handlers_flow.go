package vm

func init() {
	commandTable[Jump] = handleJump
	commandTable[Call] = handleCall
	commandTable[Ret] = handleRet
	commandTable[Halt] = handleHalt
	commandTable[Syscall] = handleSyscall
}

func handleJump(vm *VM, pc int, instr Instruction) (int, error) {
	if len(instr.Operands) != 1 {
		return 0, newError(SyntaxError, "JUMP requires one target operand")
	}
	target, err := parseIntOperand(instr.Operands[0])
	if err != nil {
		return 0, &VMError{Kind: SyntaxError, Message: "invalid jump target: " + err.Error()}
	}
	return int(target), nil
}

// handleCall implements spec.md §4.8's calling convention: arguments are
// already on the operand stack, pushed left-to-right by the caller, and are
// popped here into the callee's parameter slots in declaration order (so
// the last-pushed argument is popped first and lands in the highest
// parameter slot).
func handleCall(vm *VM, pc int, instr Instruction) (int, error) {
	if len(instr.Operands) != 2 {
		return 0, newError(SyntaxError, "CALL requires target and argument-count operands")
	}
	targetVal, err := parseIntOperand(instr.Operands[0])
	if err != nil {
		return 0, &VMError{Kind: SyntaxError, Message: "invalid call target: " + err.Error()}
	}
	nArgs, err := parseIntOperand(instr.Operands[1])
	if err != nil {
		return 0, &VMError{Kind: SyntaxError, Message: "invalid call argument count: " + err.Error()}
	}
	target := int(targetVal)

	args := make([]Value, nArgs)
	for i := int(nArgs) - 1; i >= 0; i-- {
		v, err := vm.operands.Pop()
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	name, _ := vm.functions.NameAt(target)
	frame := vm.calls.Push(name, pc+1)
	for i, v := range args {
		frame.Locals.Set(i, v)
	}
	return target, nil
}

// handleRet pops the current frame and resumes at its return address. RET on
// the root frame returns programEnd without popping it (spec.md §4.8:
// "if the top frame is the root frame, RET returns PROGRAM_END without
// popping"); normal functions end in RET and main ends in HALT instead
// (spec.md §4.6's termination policy), so this path is only taken by a
// program that RETs from its outermost frame directly.
func handleRet(vm *VM, pc int, instr Instruction) (int, error) {
	if vm.calls.IsRoot() {
		return programEnd, nil
	}
	frame, err := vm.calls.Pop()
	if err != nil {
		return 0, err
	}
	frame.Locals.Clear()
	return frame.ReturnAddress, nil
}

func handleHalt(vm *VM, pc int, instr Instruction) (int, error) {
	return programEnd, nil
}

func handleSyscall(vm *VM, pc int, instr Instruction) (int, error) {
	if len(instr.Operands) != 1 {
		return 0, newError(SyntaxError, "SYSCALL requires one code operand")
	}
	code, err := parseIntOperand(instr.Operands[0])
	if err != nil {
		return 0, &VMError{Kind: SyntaxError, Message: "invalid syscall code: " + err.Error()}
	}
	if vm.syscalls == nil {
		return 0, newError(ResourceError, "no syscall layer configured")
	}
	if err := vm.syscalls.Dispatch(uint16(code), vm.operands); err != nil {
		if verr, ok := err.(*VMError); ok {
			return 0, verr
		}
		return 0, newError(IoError, "%s", err)
	}
	return pc + 1, nil
}
