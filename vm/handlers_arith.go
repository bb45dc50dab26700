package vm

func init() {
	kinds := []ScalarKind{KindB, KindS, KindI, KindL, KindF, KindD}
	for _, k := range kinds {
		k := k
		commandTable[OpcodeAdd(k)] = binaryArith(k, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
		commandTable[OpcodeSub(k)] = binaryArith(k, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
		commandTable[OpcodeMul(k)] = binaryArith(k, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
		commandTable[OpcodeDiv(k)] = divOrMod(k, true)
		commandTable[OpcodeMod(k)] = divOrMod(k, false)
		commandTable[OpcodeNeg(k)] = unaryArith(k, func(a int64) int64 { return -a }, func(a float64) float64 { return -a })
		commandTable[OpcodeInc(k)] = unaryArith(k, func(a int64) int64 { return a + 1 }, func(a float64) float64 { return a + 1 })
		if isIntegralKind(k) {
			commandTable[OpcodeAnd(k)] = bitwise(k, func(a, b int64) int64 { return a & b })
			commandTable[OpcodeOr(k)] = bitwise(k, func(a, b int64) int64 { return a | b })
			commandTable[OpcodeXor(k)] = bitwise(k, func(a, b int64) int64 { return a ^ b })
		}
	}
}

func isIntegralKind(k ScalarKind) bool {
	switch k {
	case KindB, KindS, KindI, KindL:
		return true
	}
	return false
}

// binaryArith returns a handler that pops rhs then lhs (both of kind k),
// applies intOp or floatOp depending on the kind, and pushes the result
// back as kind k (spec.md §4.1, §4.9: typed arithmetic never changes kind).
func binaryArith(k ScalarKind, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		rhs, lhs, err := popPair(vm)
		if err != nil {
			return 0, err
		}
		result, err := applyBinary(k, lhs, rhs, intOp, floatOp)
		if err != nil {
			return 0, err
		}
		vm.operands.Push(result)
		return pc + 1, nil
	}
}

func unaryArith(k ScalarKind, intOp func(a int64) int64, floatOp func(a float64) float64) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		v, err := vm.operands.Pop()
		if err != nil {
			return 0, err
		}
		if isFloatKind(k) {
			vm.operands.Push(FloatScalar(k, floatOp(v.FloatValue())))
		} else {
			vm.operands.Push(IntScalar(k, wrapInt(k, intOp(v.IntValue()))))
		}
		return pc + 1, nil
	}
}

func bitwise(k ScalarKind, intOp func(a, b int64) int64) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		rhs, lhs, err := popPair(vm)
		if err != nil {
			return 0, err
		}
		vm.operands.Push(IntScalar(k, wrapInt(k, intOp(lhs.IntValue(), rhs.IntValue()))))
		return pc + 1, nil
	}
}

// divOrMod returns the DIV or MOD handler for kind k. Division or modulo by
// zero on an integral kind is a fatal ArithmeticError (spec.md §7); on a
// floating kind it follows IEEE 754 (Inf/NaN), matching the host's native
// float semantics.
func divOrMod(k ScalarKind, isDiv bool) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		rhs, lhs, err := popPair(vm)
		if err != nil {
			return 0, err
		}
		if isFloatKind(k) {
			a, b := lhs.FloatValue(), rhs.FloatValue()
			var result float64
			if isDiv {
				result = a / b
			} else {
				result = floatMod(a, b)
			}
			vm.operands.Push(FloatScalar(k, result))
			return pc + 1, nil
		}
		a, b := lhs.IntValue(), rhs.IntValue()
		if b == 0 {
			op := "DIV"
			if !isDiv {
				op = "MOD"
			}
			return 0, newError(ArithmeticError, "%s_%s by zero", k, op)
		}
		var result int64
		if isDiv {
			result = a / b
		} else {
			result = a % b
		}
		vm.operands.Push(IntScalar(k, wrapInt(k, result)))
		return pc + 1, nil
	}
}

func floatMod(a, b float64) float64 {
	if b == 0 {
		return nan()
	}
	return a - b*float64(int64(a/b))
}

func nan() float64 {
	var z float64
	return z / z
}

func applyBinary(k ScalarKind, lhs, rhs Value, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (Value, error) {
	if isFloatKind(k) {
		return FloatScalar(k, floatOp(lhs.FloatValue(), rhs.FloatValue())), nil
	}
	return IntScalar(k, wrapInt(k, intOp(lhs.IntValue(), rhs.IntValue()))), nil
}

func isFloatKind(k ScalarKind) bool {
	return k == KindF || k == KindD
}

// popPair pops rhs then lhs, the operand order every binary opcode expects
// (spec.md §4.4: "LOAD lhs; LOAD rhs" pushes lhs first, so it pops second).
func popPair(vm *VM) (rhs, lhs Value, err error) {
	rhs, err = vm.operands.Pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	lhs, err = vm.operands.Pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	return rhs, lhs, nil
}

// wrapInt truncates n to kind k's native width, two's-complement, matching
// the conversion opcodes' narrowing behavior (spec.md §4.5) so that e.g.
// B_ADD on two B operands stays within an 8-bit byte's range.
func wrapInt(k ScalarKind, n int64) int64 {
	switch k {
	case KindB:
		return int64(int8(n))
	case KindS:
		return int64(int16(n))
	case KindI:
		return int64(int32(n))
	default:
		return n
	}
}
