package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chlang-rt/chvm/ir"
	"github.com/chlang-rt/chvm/vm"
)

// binaryOpcodeBuilders maps an arithmetic/bitwise ir.Op to the vm package's
// per-kind opcode constructor. Comparison ops go through vm.CondBranch
// instead (see genBinaryOp), since a compare's result opcode depends on the
// comparator, not on in.Op.
var binaryOpcodeBuilders = map[ir.Op]func(vm.ScalarKind) vm.Opcode{
	ir.OpAdd: vm.OpcodeAdd,
	ir.OpSub: vm.OpcodeSub,
	ir.OpMul: vm.OpcodeMul,
	ir.OpDiv: vm.OpcodeDiv,
	ir.OpMod: vm.OpcodeMod,
	ir.OpAnd: vm.OpcodeAnd,
	ir.OpOr:  vm.OpcodeOr,
	ir.OpXor: vm.OpcodeXor,
}

// loadOpcode and storeOpcode pick the typed LOAD/STORE opcode for a scalar
// kind, routing KindR through the reference family instead of the numeric
// one (spec.md §4.1 keeps references in their own opcode block).
func loadOpcode(k ir.ScalarKind) vm.Opcode {
	if k == ir.KindR {
		return vm.RLoad
	}
	return vm.OpcodeLoad(toVMKind(k))
}

func storeOpcode(k ir.ScalarKind) vm.Opcode {
	if k == ir.KindR {
		return vm.RStore
	}
	return vm.OpcodeStore(toVMKind(k))
}

// GenerateProgram lowers a complete set of typed IR functions into one
// linear vm.Program. "main" is emitted first so execution starts at
// instruction 0 (spec.md §3); it terminates in HALT where every other
// function terminates in RET (spec.md §4.6).
func GenerateProgram(functions []*ir.Function, ft *FunctionTable, gt *GlobalTable) (*vm.Program, *vm.FunctionResolver, error) {
	ordered := orderWithMainFirst(functions)
	b := NewBuilder()
	for _, fn := range ordered {
		if err := generateFunction(b, fn, ft, gt); err != nil {
			return nil, nil, fmt.Errorf("codegen: function %q: %w", fn.Name, err)
		}
	}
	return b.Build()
}

func orderWithMainFirst(functions []*ir.Function) []*ir.Function {
	ordered := make([]*ir.Function, 0, len(functions))
	var rest []*ir.Function
	for _, fn := range functions {
		if fn.Name == "main" {
			ordered = append(ordered, fn)
		} else {
			rest = append(rest, fn)
		}
	}
	return append(ordered, rest...)
}

func generateFunction(b *Builder, fn *ir.Function, ft *FunctionTable, gt *GlobalTable) error {
	b.BeginFunction(fn.Name)
	g := &functionGen{b: b, sm: NewSlotMap(fn), ft: ft, gt: gt, fn: fn}
	for _, instr := range fn.Body {
		if err := g.generate(instr); err != nil {
			return err
		}
	}
	// A function whose body falls off the end without an explicit Return
	// (a void function, or main with no trailing return statement) still
	// needs a terminator; a body that already ends in Return leaves this
	// unreachable, which is harmless.
	if fn.Name == "main" {
		b.Emit(vm.Halt)
	} else {
		b.Emit(vm.Ret)
	}
	return b.EndFunction()
}

// functionGen lowers one function's IR body against its own SlotMap, the
// program-wide FunctionTable (for CALL signatures) and GlobalTable (for
// LoadGlobal/StoreGlobal addresses).
type functionGen struct {
	b  *Builder
	sm *SlotMap
	ft *FunctionTable
	gt *GlobalTable
	fn *ir.Function
}

func (g *functionGen) generate(instr ir.Instruction) error {
	switch in := instr.(type) {
	case ir.LoadConst:
		return g.genLoadConst(in)
	case ir.Move:
		return g.genMove(in)
	case ir.BinaryOp:
		return g.genBinaryOp(in)
	case ir.UnaryOp:
		return g.genUnaryOp(in)
	case ir.Jump:
		g.b.EmitJump(in.Label)
		return nil
	case ir.CondJump:
		return g.genCondJump(in)
	case ir.Label:
		return g.b.EmitLabel(in.ID)
	case ir.Call:
		return g.genCall(in)
	case ir.Return:
		return g.genReturn(in)
	case ir.LoadGlobal:
		return g.genLoadGlobal(in)
	case ir.StoreGlobal:
		return g.genStoreGlobal(in)
	}
	return fmt.Errorf("unhandled IR instruction %T", instr)
}

func (g *functionGen) genLoadConst(in ir.LoadConst) error {
	slot := g.sm.Assign(in.Dst)
	g.sm.SetKind(slot, in.Value.Kind)
	if in.Value.Kind == ir.KindR {
		g.b.Emit(vm.RPush, quoteString(in.Value.Str))
		g.b.Emit(vm.RStore, strconv.Itoa(slot))
		return nil
	}
	vmKind := toVMKind(in.Value.Kind)
	g.b.Emit(vm.OpcodePush(vmKind), formatLiteral(in.Value))
	g.b.Emit(vm.OpcodeStore(vmKind), strconv.Itoa(slot))
	return nil
}

func (g *functionGen) genMove(in ir.Move) error {
	srcSlot := g.sm.Slot(in.Src)
	srcKind := g.sm.Kind(srcSlot)
	dstSlot := g.sm.Assign(in.Dst)
	g.sm.SetKind(dstSlot, srcKind)
	g.b.Emit(loadOpcode(srcKind), strconv.Itoa(srcSlot))
	g.b.Emit(storeOpcode(srcKind), strconv.Itoa(dstSlot))
	return nil
}

func (g *functionGen) genBinaryOp(in ir.BinaryOp) error {
	lhsSlot := g.sm.Slot(in.Lhs)
	rhsSlot := g.sm.Slot(in.Rhs)
	lhsKind := g.sm.Kind(lhsSlot)
	rhsKind := g.sm.Kind(rhsSlot)

	g.b.Emit(loadOpcode(lhsKind), strconv.Itoa(lhsSlot))
	g.b.emitCoercion(lhsKind, in.Kind)
	g.b.Emit(loadOpcode(rhsKind), strconv.Itoa(rhsSlot))
	g.b.emitCoercion(rhsKind, in.Kind)

	dstSlot := g.sm.Assign(in.Dst)

	if in.Compare {
		// Zero operands selects the push-bool form of the per-kind compare
		// family, not the compare-and-branch form (see vm.CondBranch).
		g.b.Emit(vm.CondBranch(toVMKind(in.Kind), toVMComparator(in.Cmp)))
		g.sm.SetKind(dstSlot, ir.KindI)
		g.b.Emit(vm.OpcodeStore(vm.KindI), strconv.Itoa(dstSlot))
		return nil
	}

	builder, ok := binaryOpcodeBuilders[in.Op]
	if !ok {
		return fmt.Errorf("unsupported binary operator %d", in.Op)
	}
	g.b.Emit(builder(toVMKind(in.Kind)))
	g.sm.SetKind(dstSlot, in.Kind)
	g.b.Emit(vm.OpcodeStore(toVMKind(in.Kind)), strconv.Itoa(dstSlot))
	return nil
}

func (g *functionGen) genUnaryOp(in ir.UnaryOp) error {
	if in.Op != ir.OpNeg {
		return fmt.Errorf("unsupported unary operator %d", in.Op)
	}
	srcSlot := g.sm.Slot(in.Src)
	srcKind := g.sm.Kind(srcSlot)
	g.b.Emit(loadOpcode(srcKind), strconv.Itoa(srcSlot))
	g.b.emitCoercion(srcKind, in.Kind)
	g.b.Emit(vm.OpcodeNeg(toVMKind(in.Kind)))

	dstSlot := g.sm.Assign(in.Dst)
	g.sm.SetKind(dstSlot, in.Kind)
	g.b.Emit(vm.OpcodeStore(toVMKind(in.Kind)), strconv.Itoa(dstSlot))
	return nil
}

func (g *functionGen) genCondJump(in ir.CondJump) error {
	lhsSlot := g.sm.Slot(in.Lhs)
	rhsSlot := g.sm.Slot(in.Rhs)
	lhsKind := g.sm.Kind(lhsSlot)
	rhsKind := g.sm.Kind(rhsSlot)

	g.b.Emit(loadOpcode(lhsKind), strconv.Itoa(lhsSlot))
	g.b.emitCoercion(lhsKind, in.Kind)
	g.b.Emit(loadOpcode(rhsKind), strconv.Itoa(rhsSlot))
	g.b.emitCoercion(rhsKind, in.Kind)

	g.b.EmitCondBranch(vm.CondBranch(toVMKind(in.Kind), toVMComparator(in.Cmp)), in.Label)
	return nil
}

func (g *functionGen) genCall(in ir.Call) error {
	paramKinds, ok := g.ft.ParamTypes(in.Callee)
	if !ok {
		return fmt.Errorf("call to undeclared function %q", in.Callee)
	}
	if len(paramKinds) != len(in.Args) {
		return fmt.Errorf("%q expects %d arguments, got %d", in.Callee, len(paramKinds), len(in.Args))
	}
	for i, argReg := range in.Args {
		slot := g.sm.Slot(argReg)
		kind := g.sm.Kind(slot)
		g.b.Emit(loadOpcode(kind), strconv.Itoa(slot))
		g.b.emitCoercion(kind, paramKinds[i])
	}
	g.b.EmitCall(in.Callee, len(in.Args))

	returnKind, _ := g.ft.ReturnType(in.Callee)
	switch {
	case in.Dst != nil:
		dstSlot := g.sm.Assign(*in.Dst)
		g.sm.SetKind(dstSlot, returnKind)
		g.b.Emit(storeOpcode(returnKind), strconv.Itoa(dstSlot))
	case returnKind != ir.KindVoid:
		g.b.Emit(vm.Pop)
	}
	return nil
}

func (g *functionGen) genReturn(in ir.Return) error {
	if in.Value != nil {
		slot := g.sm.Slot(*in.Value)
		srcKind := g.sm.Kind(slot)
		g.b.Emit(loadOpcode(srcKind), strconv.Itoa(slot))
		if srcKind.IsNumeric() && g.fn.ReturnKind.IsNumeric() {
			g.b.emitCoercion(srcKind, g.fn.ReturnKind)
		}
	}
	if g.fn.Name == "main" {
		g.b.Emit(vm.Halt)
	} else {
		g.b.Emit(vm.Ret)
	}
	return nil
}

func (g *functionGen) genLoadGlobal(in ir.LoadGlobal) error {
	globalSlot := g.gt.Declare(in.Name)
	dstSlot := g.sm.Assign(in.Dst)
	g.sm.SetKind(dstSlot, in.Kind)
	g.b.Emit(loadOpcode(in.Kind), strconv.Itoa(globalSlot))
	g.b.Emit(storeOpcode(in.Kind), strconv.Itoa(dstSlot))
	return nil
}

func (g *functionGen) genStoreGlobal(in ir.StoreGlobal) error {
	srcSlot := g.sm.Slot(in.Src)
	srcKind := g.sm.Kind(srcSlot)
	globalSlot := g.gt.Declare(in.Name)
	g.b.Emit(loadOpcode(srcKind), strconv.Itoa(srcSlot))
	g.b.Emit(storeOpcode(srcKind), strconv.Itoa(globalSlot))
	return nil
}

func formatLiteral(c ir.Constant) string {
	if c.Kind == ir.KindF || c.Kind == ir.KindD {
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	}
	return strconv.FormatInt(c.Int, 10)
}

func quoteString(s string) string {
	escaped := strings.ReplaceAll(s, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	return `"` + escaped + `"`
}
