package vm

func init() {
	kinds := []ScalarKind{KindB, KindS, KindI, KindL, KindF, KindD}
	for _, k := range kinds {
		k := k
		commandTable[OpcodePush(k)] = handlePush(k)
		commandTable[OpcodeLoad(k)] = handleLoad(k)
		commandTable[OpcodeStore(k)] = handleStore(k)
	}
	commandTable[RPush] = handleRefPush
	commandTable[RLoad] = handleRefLoad
	commandTable[RStore] = handleRefStore
	commandTable[Pop] = handlePop
	commandTable[Dup] = handleDup
	commandTable[Swap] = handleSwap
	commandTable[Mov] = handleMov
}

// handlePush returns the <K>_PUSH handler: push the literal operand as a
// Value of kind K onto the operand stack.
func handlePush(k ScalarKind) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		if len(instr.Operands) != 1 {
			return 0, newError(SyntaxError, "%s_PUSH requires one literal operand", k)
		}
		v, err := literalValue(k, instr.Operands[0])
		if err != nil {
			return 0, err
		}
		vm.operands.Push(v)
		return pc + 1, nil
	}
}

// handleLoad returns the <K>_LOAD handler: push the value of the named
// slot onto the operand stack.
func handleLoad(k ScalarKind) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		slot, err := operandSlot(instr)
		if err != nil {
			return 0, err
		}
		vm.operands.Push(vm.Locals().Get(slot))
		return pc + 1, nil
	}
}

// handleStore returns the <K>_STORE handler: pop the top of stack and write
// it into the named slot.
func handleStore(k ScalarKind) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		slot, err := operandSlot(instr)
		if err != nil {
			return 0, err
		}
		v, err := vm.operands.Pop()
		if err != nil {
			return 0, err
		}
		vm.Locals().Set(slot, v)
		return pc + 1, nil
	}
}

func handleRefPush(vm *VM, pc int, instr Instruction) (int, error) {
	if len(instr.Operands) != 1 {
		return 0, newError(SyntaxError, "R_PUSH requires one string operand")
	}
	s, err := parseStringOperand(instr.Operands[0])
	if err != nil {
		return 0, &VMError{Kind: SyntaxError, Message: err.Error()}
	}
	vm.operands.Push(RefScalar(s))
	return pc + 1, nil
}

func handleRefLoad(vm *VM, pc int, instr Instruction) (int, error) {
	slot, err := operandSlot(instr)
	if err != nil {
		return 0, err
	}
	vm.operands.Push(vm.Locals().Get(slot))
	return pc + 1, nil
}

func handleRefStore(vm *VM, pc int, instr Instruction) (int, error) {
	slot, err := operandSlot(instr)
	if err != nil {
		return 0, err
	}
	v, err := vm.operands.Pop()
	if err != nil {
		return 0, err
	}
	vm.Locals().Set(slot, v)
	return pc + 1, nil
}

func handlePop(vm *VM, pc int, instr Instruction) (int, error) {
	if _, err := vm.operands.Pop(); err != nil {
		return 0, err
	}
	return pc + 1, nil
}

func handleDup(vm *VM, pc int, instr Instruction) (int, error) {
	v, err := vm.operands.Peek()
	if err != nil {
		return 0, err
	}
	vm.operands.Push(v)
	return pc + 1, nil
}

func handleSwap(vm *VM, pc int, instr Instruction) (int, error) {
	a, err := vm.operands.Pop()
	if err != nil {
		return 0, err
	}
	b, err := vm.operands.Pop()
	if err != nil {
		return 0, err
	}
	vm.operands.Push(a)
	vm.operands.Push(b)
	return pc + 1, nil
}

// handleMov is a direct slot-to-slot copy that never touches the operand
// stack. No generator in this project emits it (Move lowers to LOAD+STORE
// per spec.md §4.4), but the opcode is part of the defined set and must
// have a registered handler regardless of whether codegen uses it.
func handleMov(vm *VM, pc int, instr Instruction) (int, error) {
	if len(instr.Operands) != 2 {
		return 0, newError(SyntaxError, "MOV requires dst and src slot operands")
	}
	dst, err := parseSlotToken(instr.Operands[0])
	if err != nil {
		return 0, err
	}
	src, err := parseSlotToken(instr.Operands[1])
	if err != nil {
		return 0, err
	}
	vm.Locals().Set(dst, vm.Locals().Get(src))
	return pc + 1, nil
}

func operandSlot(instr Instruction) (int, error) {
	if len(instr.Operands) != 1 {
		return 0, newError(SyntaxError, "%s requires one slot operand", instr.Opcode)
	}
	return parseSlotToken(instr.Operands[0])
}

func parseSlotToken(tok string) (int, error) {
	n, err := parseIntOperand(tok)
	if err != nil {
		return 0, &VMError{Kind: SyntaxError, Message: "invalid slot operand: " + err.Error()}
	}
	return int(n), nil
}

func literalValue(k ScalarKind, tok string) (Value, error) {
	if k == KindF || k == KindD {
		f, err := parseFloatOperand(tok)
		if err != nil {
			return Value{}, &VMError{Kind: SyntaxError, Message: "invalid float literal: " + err.Error()}
		}
		return FloatScalar(k, f), nil
	}
	n, err := parseIntOperand(tok)
	if err != nil {
		return Value{}, &VMError{Kind: SyntaxError, Message: "invalid integer literal: " + err.Error()}
	}
	return IntScalar(k, n), nil
}
