// Package codegen lowers typed IR (package ir) into linear bytecode for
// package vm: slot allocation, type-driven opcode selection, numeric
// coercion insertion, label fixup, and the final program assembly.
package codegen

import (
	"fmt"

	"github.com/chlang-rt/chvm/ir"
)

// SlotMap is an injective mapping from IR virtual registers to dense
// per-function slot indices. Parameter registers occupy the first slots in
// declaration order; there is no liveness analysis and no slot reuse, which
// trivially preserves debuggability and avoids write-after-write hazards in
// the generator (the same tradeoff the teacher's register allocator makes:
// see targets/vm/allocator.go's doc comment on the dummy allocator).
type SlotMap struct {
	slots     map[ir.Register]int
	order     []ir.Register
	slotKinds []ir.ScalarKind // sticky per-slot type prefix, index == slot
}

// NewSlotMap allocates slots for fn's parameters in declaration order, then
// returns the map ready to receive the rest of the body via Assign.
func NewSlotMap(fn *ir.Function) *SlotMap {
	sm := &SlotMap{slots: make(map[ir.Register]int, len(fn.Body))}
	for i, reg := range fn.Params {
		sm.bind(reg)
		sm.SetKind(sm.slots[reg], fn.ParamKinds[i])
	}
	return sm
}

func (sm *SlotMap) bind(reg ir.Register) int {
	if slot, ok := sm.slots[reg]; ok {
		return slot
	}
	slot := len(sm.order)
	sm.slots[reg] = slot
	sm.order = append(sm.order, reg)
	sm.slotKinds = append(sm.slotKinds, ir.KindVoid)
	return slot
}

// Assign returns the slot for reg, allocating the next free slot the first
// time reg is seen. Walking a function body in order and calling Assign on
// every defined register reproduces the allocator's step 2 from spec.md.
func (sm *SlotMap) Assign(reg ir.Register) int {
	return sm.bind(reg)
}

// Slot returns the already-assigned slot for reg. It panics if reg has not
// been assigned, since every IR register must be defined before use.
func (sm *SlotMap) Slot(reg ir.Register) int {
	slot, ok := sm.slots[reg]
	if !ok {
		panic(fmt.Sprintf("codegen: register %d read before definition", reg))
	}
	return slot
}

// SetKind records the sticky type prefix of a slot. Reassigning a slot with
// a narrower kind is legal only through an explicit coercion emitted by the
// caller; SetKind itself does not check widening, it only records state.
func (sm *SlotMap) SetKind(slot int, kind ir.ScalarKind) {
	for len(sm.slotKinds) <= slot {
		sm.slotKinds = append(sm.slotKinds, ir.KindVoid)
	}
	sm.slotKinds[slot] = kind
}

// Kind returns the sticky type prefix of a slot, or KindVoid if the slot has
// never been written.
func (sm *SlotMap) Kind(slot int) ir.ScalarKind {
	if slot < 0 || slot >= len(sm.slotKinds) {
		return ir.KindVoid
	}
	return sm.slotKinds[slot]
}

// Count returns the number of slots allocated so far.
func (sm *SlotMap) Count() int {
	return len(sm.order)
}
