package vm

import "fmt"

// GlobalSlotBase mirrors codegen.GlobalSlotBase: the reserved slot range for
// globals starts here (spec.md §3). The constant is duplicated rather than
// imported because package vm must not depend on package codegen (codegen
// depends on vm for its opcode vocabulary); both sides of the compiler/VM
// boundary independently need the same constant, exactly as spec.md
// documents it once under the data model and once under the frame runtime.
const GlobalSlotBase = 1_000_000

// IsGlobalSlot reports whether slot addresses the shared global region.
func IsGlobalSlot(slot int) bool {
	return slot >= GlobalSlotBase
}

// GlobalRegion is the process-wide, shared global-slot store. Writes are
// not automatically synchronized (spec.md §5): it is the program's
// responsibility to guard concurrent access with the mutex syscalls.
type GlobalRegion struct {
	values map[int]Value
}

// NewGlobalRegion returns an empty global region.
func NewGlobalRegion() *GlobalRegion {
	return &GlobalRegion{values: make(map[int]Value)}
}

func (g *GlobalRegion) get(slot int) Value {
	return g.values[slot]
}

func (g *GlobalRegion) set(slot int, v Value) {
	g.values[slot] = v
}

// LocalVariableStore is a sparse slot→value mapping for one stack frame.
// Access to a global slot transparently redirects to the shared
// GlobalRegion (spec.md §4.7); Clear resets only the frame-local slots.
type LocalVariableStore struct {
	locals  map[int]Value
	globals *GlobalRegion
}

func newLocalVariableStore(globals *GlobalRegion) *LocalVariableStore {
	return &LocalVariableStore{locals: make(map[int]Value), globals: globals}
}

// Get returns the value at slot, or the zero Value if never written.
func (l *LocalVariableStore) Get(slot int) Value {
	if IsGlobalSlot(slot) {
		return l.globals.get(slot)
	}
	return l.locals[slot]
}

// Set writes v to slot.
func (l *LocalVariableStore) Set(slot int, v Value) {
	if IsGlobalSlot(slot) {
		l.globals.set(slot, v)
		return
	}
	l.locals[slot] = v
}

// Clear drops every frame-local slot. Called on frame return so that a
// restored parent frame never observes the callee's locals (spec.md §8).
func (l *LocalVariableStore) Clear() {
	l.locals = make(map[int]Value)
}

// ROOTSentinel is the synthesized return address of the root frame: "+∞",
// meaning program end (spec.md §3, §4.8).
const ROOTSentinel = -1

// StackFrame is one call's activation record: return address, its local
// slots, and the callee name for diagnostics.
type StackFrame struct {
	ReturnAddress int
	Locals        *LocalVariableStore
	FunctionName  string
}

// CallStack is a stack of StackFrames. It is never empty during execution;
// the root frame is synthesized at VM start and is never popped by RET.
type CallStack struct {
	frames  []*StackFrame
	globals *GlobalRegion
}

// NewCallStack returns a CallStack seeded with the synthesized root frame.
func NewCallStack(globals *GlobalRegion) *CallStack {
	cs := &CallStack{globals: globals}
	cs.frames = append(cs.frames, &StackFrame{
		ReturnAddress: ROOTSentinel,
		Locals:        newLocalVariableStore(globals),
		FunctionName:  "<root>",
	})
	return cs
}

// Push adds a new frame for calleeName, returning to returnAddress.
func (cs *CallStack) Push(calleeName string, returnAddress int) *StackFrame {
	frame := &StackFrame{
		ReturnAddress: returnAddress,
		Locals:        newLocalVariableStore(cs.globals),
		FunctionName:  calleeName,
	}
	cs.frames = append(cs.frames, frame)
	return frame
}

// Pop removes and returns the top frame. It is a StackError to pop the root
// frame (spec.md §7: "RET on an empty call stack (below the root)").
func (cs *CallStack) Pop() (*StackFrame, error) {
	if len(cs.frames) <= 1 {
		return nil, &VMError{Kind: StackError, Message: "RET below the root frame"}
	}
	idx := len(cs.frames) - 1
	frame := cs.frames[idx]
	cs.frames = cs.frames[:idx]
	return frame, nil
}

// Peek returns the top frame without removing it.
func (cs *CallStack) Peek() *StackFrame {
	return cs.frames[len(cs.frames)-1]
}

// IsRoot reports whether the top frame is the synthesized root frame.
func (cs *CallStack) IsRoot() bool {
	return len(cs.frames) == 1
}

// IsEmpty reports whether the call stack holds no frames. This should never
// be observed during execution; it exists for diagnostics/tests.
func (cs *CallStack) IsEmpty() bool {
	return len(cs.frames) == 0
}

func (cs *CallStack) String() string {
	names := make([]string, len(cs.frames))
	for i, f := range cs.frames {
		names[i] = f.FunctionName
	}
	return fmt.Sprintf("%v", names)
}
