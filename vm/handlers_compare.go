package vm

// Compare opcodes serve two distinct BinaryOp(compare)/CondJump lowerings
// from the same per-kind family (spec.md §4.4 and §4.9 both name
// <K>_CE/CNE/CG/CGE/CL/CLE): with no operand they pop two K-values and push
// a boolean I(0|1) result (the BinaryOp(compare) case, followed by an
// ordinary I_STORE); with one operand — a resolved jump target — they pop
// two K-values, evaluate the comparator, and branch to the target on true
// instead of producing a stack value (the CondJump case). The handler below
// picks the mode from the instruction's operand count.
func init() {
	kinds := []ScalarKind{KindB, KindS, KindI, KindL, KindF, KindD}
	cmps := []struct {
		build func(ScalarKind) Opcode
		cmp   Comparator
	}{
		{OpcodeCE, CmpEq}, {OpcodeCNE, CmpNe}, {OpcodeCG, CmpGt},
		{OpcodeCGE, CmpGe}, {OpcodeCL, CmpLt}, {OpcodeCLE, CmpLe},
	}
	for _, k := range kinds {
		for _, c := range cmps {
			commandTable[c.build(k)] = compareHandler(k, c.cmp)
		}
	}
}

func compareHandler(k ScalarKind, cmp Comparator) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		rhs, lhs, err := popPair(vm)
		if err != nil {
			return 0, err
		}
		result := evalComparator(k, cmp, lhs, rhs)

		if len(instr.Operands) == 0 {
			vm.operands.Push(BoolScalar(result))
			return pc + 1, nil
		}
		if len(instr.Operands) != 1 {
			return 0, newError(SyntaxError, "%s takes zero or one operand", instr.Opcode)
		}
		target, err := parseIntOperand(instr.Operands[0])
		if err != nil {
			return 0, &VMError{Kind: SyntaxError, Message: "invalid branch target: " + err.Error()}
		}
		if result {
			return int(target), nil
		}
		return pc + 1, nil
	}
}

func evalComparator(k ScalarKind, cmp Comparator, lhs, rhs Value) bool {
	if isFloatKind(k) {
		a, b := lhs.FloatValue(), rhs.FloatValue()
		switch cmp {
		case CmpEq:
			return a == b
		case CmpNe:
			return a != b
		case CmpGt:
			return a > b
		case CmpGe:
			return a >= b
		case CmpLt:
			return a < b
		case CmpLe:
			return a <= b
		}
	}
	a, b := lhs.IntValue(), rhs.IntValue()
	switch cmp {
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpGt:
		return a > b
	case CmpGe:
		return a >= b
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	}
	return false
}
