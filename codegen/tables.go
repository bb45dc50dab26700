package codegen

import (
	"fmt"

	"github.com/chlang-rt/chvm/ir"
)

// GlobalSlotBase is the reserved slot range start for globals (spec.md §3,
// §4.6): isGlobal(slot) iff slot >= GlobalSlotBase.
const GlobalSlotBase = 1_000_000

// IsGlobalSlot reports whether slot addresses the shared global region.
func IsGlobalSlot(slot int) bool {
	return slot >= GlobalSlotBase
}

// GlobalSlotIndex converts a global slot address to its index within the
// global region. It panics if slot is not a global slot.
func GlobalSlotIndex(slot int) int {
	if !IsGlobalSlot(slot) {
		panic(fmt.Sprintf("codegen: slot %d is not a global slot", slot))
	}
	return slot - GlobalSlotBase
}

// GlobalSlotFromIndex is the inverse of GlobalSlotIndex.
func GlobalSlotFromIndex(index int) int {
	return GlobalSlotBase + index
}

// FunctionSignature binds a function name to its parameter kinds and return
// kind, as recorded in the GlobalFunctionTable before code generation.
type FunctionSignature struct {
	ReturnKind ir.ScalarKind
	ParamKinds []ir.ScalarKind
}

// FunctionTable is the process-wide registry binding function names to
// their signatures (spec.md §4.6). It is grounded on the teacher's
// FunctionObject.addConstant/lookupConstant pattern (targets/vm/function.go)
// generalized from a per-function constant pool to one table shared across
// the whole program.
type FunctionTable struct {
	signatures map[string]FunctionSignature
}

// NewFunctionTable returns an empty table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{signatures: make(map[string]FunctionSignature)}
}

// Register binds name to a signature. Calling Register twice for the same
// name is a hard error, matching spec.md §4.6's "must be called exactly
// once per function".
func (t *FunctionTable) Register(name string, returnKind ir.ScalarKind, paramKinds []ir.ScalarKind) error {
	if _, exists := t.signatures[name]; exists {
		return fmt.Errorf("codegen: function %q already registered", name)
	}
	t.signatures[name] = FunctionSignature{ReturnKind: returnKind, ParamKinds: paramKinds}
	return nil
}

// ParamTypes returns the parameter kinds of name.
func (t *FunctionTable) ParamTypes(name string) ([]ir.ScalarKind, bool) {
	sig, ok := t.signatures[name]
	if !ok {
		return nil, false
	}
	return sig.ParamKinds, true
}

// ReturnType returns the declared return kind of name.
func (t *FunctionTable) ReturnType(name string) (ir.ScalarKind, bool) {
	sig, ok := t.signatures[name]
	if !ok {
		return ir.KindVoid, false
	}
	return sig.ReturnKind, true
}

// GlobalTable maps global variable names to their reserved global slot
// index. Globals are declared on first use, as the generator lowers each
// LoadGlobal/StoreGlobal.
type GlobalTable struct {
	slots map[string]int
	next  int
}

// NewGlobalTable returns an empty table.
func NewGlobalTable() *GlobalTable {
	return &GlobalTable{slots: make(map[string]int)}
}

// Declare reserves the next global slot for name and returns its absolute
// slot address (GlobalSlotBase + index). Declaring the same name twice
// returns the previously reserved slot.
func (g *GlobalTable) Declare(name string) int {
	if idx, ok := g.slots[name]; ok {
		return GlobalSlotFromIndex(idx)
	}
	idx := g.next
	g.next++
	g.slots[name] = idx
	return GlobalSlotFromIndex(idx)
}

// Lookup returns the absolute global slot address for name.
func (g *GlobalTable) Lookup(name string) (int, bool) {
	idx, ok := g.slots[name]
	if !ok {
		return 0, false
	}
	return GlobalSlotFromIndex(idx), true
}
