package vmsys

import "github.com/chlang-rt/chvm/vm"

// Argument/result marshalling shared by every syscall family: arguments
// arrive as whatever Value the generator pushed (spec.md §4.10 describes
// each syscall's argument kinds), and IntValue()/string assertions narrow
// them the same way the VM's own binary opcodes do (vm/value.go).

func popInt(stack *vm.OperandStack) (int64, error) {
	v, err := stack.Pop()
	if err != nil {
		return 0, err
	}
	return v.IntValue(), nil
}

func popString(stack *vm.OperandStack) (string, error) {
	v, err := stack.Pop()
	if err != nil {
		return "", err
	}
	s, ok := v.Ref.(string)
	if !ok {
		return "", &vm.VMError{Kind: vm.TypeError, Message: "expected string operand"}
	}
	return s, nil
}

func popBytes(stack *vm.OperandStack) ([]byte, error) {
	v, err := stack.Pop()
	if err != nil {
		return nil, err
	}
	switch ref := v.Ref.(type) {
	case string:
		return []byte(ref), nil
	case []byte:
		return ref, nil
	}
	return nil, &vm.VMError{Kind: vm.TypeError, Message: "expected byte buffer operand"}
}

func pushInt(stack *vm.OperandStack, n int64) {
	stack.Push(vm.IntScalar(vm.KindL, n))
}

func pushString(stack *vm.OperandStack, s string) {
	stack.Push(vm.RefScalar(s))
}

func pushBytes(stack *vm.OperandStack, b []byte) {
	stack.Push(vm.RefScalar(b))
}

func pushBool(stack *vm.OperandStack, b bool) {
	stack.Push(vm.BoolScalar(b))
}
