package vmsys

import (
	"sync"

	"github.com/chlang-rt/chvm/vm"
)

// arrayRegistry holds opaque, dynamically-sized value arrays behind integer
// handles, the aggregate-value escape hatch spec.md §4.10 gives programs
// that need a list without a first-class array IR type. Grounded on GVM's
// devices.go registry shape.
type arrayRegistry struct {
	mu     sync.Mutex
	arrays map[int][]vm.Value
	next   int
}

func newArrayRegistry() *arrayRegistry {
	return &arrayRegistry{arrays: make(map[int][]vm.Value)}
}

func (r *arrayRegistry) create() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.arrays[h] = nil
	return h
}

func (r *arrayRegistry) get(h int) ([]vm.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.arrays[h]
	return a, ok
}

func (r *arrayRegistry) set(h int, values []vm.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arrays[h] = values
}

func arrayHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		ARR_NEW: func(s *Syscalls, stack *vm.OperandStack) error {
			pushInt(stack, int64(s.arrays.create()))
			return nil
		},
		ARR_LEN: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			a, ok := s.arrays.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown array handle"}
			}
			pushInt(stack, int64(len(a)))
			return nil
		},
		ARR_GET: func(s *Syscalls, stack *vm.OperandStack) error {
			idx, err := popInt(stack)
			if err != nil {
				return err
			}
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			a, ok := s.arrays.get(int(h))
			if !ok || idx < 0 || int(idx) >= len(a) {
				return &vm.VMError{Kind: vm.ResourceError, Message: "array index out of range"}
			}
			stack.Push(a[idx])
			return nil
		},
		ARR_SET: func(s *Syscalls, stack *vm.OperandStack) error {
			value, err := stack.Pop()
			if err != nil {
				return err
			}
			idx, err := popInt(stack)
			if err != nil {
				return err
			}
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			a, ok := s.arrays.get(int(h))
			if !ok || idx < 0 || int(idx) >= len(a) {
				return &vm.VMError{Kind: vm.ResourceError, Message: "array index out of range"}
			}
			a[idx] = value
			s.arrays.set(int(h), a)
			return nil
		},
		ARR_PUSH: func(s *Syscalls, stack *vm.OperandStack) error {
			value, err := stack.Pop()
			if err != nil {
				return err
			}
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			a, ok := s.arrays.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown array handle"}
			}
			a = append(a, value)
			s.arrays.set(int(h), a)
			pushInt(stack, int64(len(a)))
			return nil
		},
		ARR_POP: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			a, ok := s.arrays.get(int(h))
			if !ok || len(a) == 0 {
				return &vm.VMError{Kind: vm.ResourceError, Message: "pop from empty array"}
			}
			last := a[len(a)-1]
			s.arrays.set(int(h), a[:len(a)-1])
			stack.Push(last)
			return nil
		},
		ARR_INSERT: func(s *Syscalls, stack *vm.OperandStack) error {
			value, err := stack.Pop()
			if err != nil {
				return err
			}
			idx, err := popInt(stack)
			if err != nil {
				return err
			}
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			a, ok := s.arrays.get(int(h))
			if !ok || idx < 0 || int(idx) > len(a) {
				return &vm.VMError{Kind: vm.ResourceError, Message: "array index out of range"}
			}
			a = append(a, vm.Value{})
			copy(a[idx+1:], a[idx:])
			a[idx] = value
			s.arrays.set(int(h), a)
			pushInt(stack, int64(len(a)))
			return nil
		},
		ARR_CLEAR: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			if _, ok := s.arrays.get(int(h)); !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown array handle"}
			}
			s.arrays.set(int(h), nil)
			return nil
		},
	}
}
