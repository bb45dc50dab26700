package vm

import "math"

// kindBounds gives the [min,max] representable range for an integral kind,
// used to saturate an out-of-range float->int conversion rather than wrap it
// (spec.md §9 open question, resolved in DESIGN.md: saturate).
func kindBounds(k ScalarKind) (int64, int64) {
	switch k {
	case KindB:
		return math.MinInt8, math.MaxInt8
	case KindS:
		return math.MinInt16, math.MaxInt16
	case KindI:
		return math.MinInt32, math.MaxInt32
	default: // KindL
		return math.MinInt64, math.MaxInt64
	}
}

// floatToInt converts f to kind k, truncating toward zero, NaN to 0, and
// saturating an out-of-range magnitude to the kind's min or max instead of
// wrapping (spec.md §9 open question).
func floatToInt(k ScalarKind, f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	lo, hi := kindBounds(k)
	if f <= float64(lo) {
		return lo
	}
	if f >= float64(hi) {
		return hi
	}
	return int64(f)
}

func init() {
	pairs := []struct {
		ops  []Opcode
		from ScalarKind
	}{
		{[]Opcode{B2S, B2I, B2L, B2F, B2D}, KindB},
		{[]Opcode{S2B, S2I, S2L, S2F, S2D}, KindS},
		{[]Opcode{I2B, I2S, I2L, I2F, I2D}, KindI},
		{[]Opcode{L2B, L2S, L2I, L2F, L2D}, KindL},
		{[]Opcode{F2B, F2S, F2I, F2L, F2D}, KindF},
		{[]Opcode{D2B, D2S, D2I, D2L, D2F}, KindD},
	}
	// The six kinds in opcode-declaration order; each ops[] slice above lists
	// its conversions in this same order with the from-kind itself skipped,
	// so targets advances independently of ops' index.
	targets := []ScalarKind{KindB, KindS, KindI, KindL, KindF, KindD}
	for _, p := range pairs {
		from := p.from
		opIdx := 0
		for _, to := range targets {
			if to == from {
				continue
			}
			commandTable[p.ops[opIdx]] = convertHandler(from, to)
			opIdx++
		}
	}
}

func convertHandler(from, to ScalarKind) Handler {
	return func(vm *VM, pc int, instr Instruction) (int, error) {
		v, err := vm.operands.Pop()
		if err != nil {
			return 0, err
		}
		var result Value
		if isFloatKind(to) {
			var f float64
			if isFloatKind(from) {
				f = v.FloatValue()
			} else {
				f = float64(v.IntValue())
			}
			result = FloatScalar(to, f)
		} else {
			var n int64
			if isFloatKind(from) {
				n = floatToInt(to, v.FloatValue())
			} else {
				n = wrapInt(to, v.IntValue())
			}
			result = IntScalar(to, n)
		}
		vm.operands.Push(result)
		return pc + 1, nil
	}
}
