package ir

// Register is an opaque virtual register identity. It is unique within a
// Function and is never reused across functions.
type Register int

// Op is a source-level arithmetic or comparison operator carried by
// BinaryOp, UnaryOp and CondJump. It names the operation the generator must
// lower to a kind-specific opcode; it is not itself a bytecode opcode.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpAnd
	OpOr
	OpXor
)

// Comparator names the six comparison operators a CondJump or a BinaryOp
// compare variant carries.
type Comparator uint8

const (
	CmpEq Comparator = iota
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe
)

func (c Comparator) String() string {
	switch c {
	case CmpEq:
		return "CE"
	case CmpNe:
		return "CNE"
	case CmpGt:
		return "CG"
	case CmpGe:
		return "CGE"
	case CmpLt:
		return "CL"
	case CmpLe:
		return "CLE"
	}
	return "?"
}

// Constant is a tagged union over scalar kinds plus string; boolean values
// are stored as I(0|1).
type Constant struct {
	Kind  ScalarKind
	Int   int64
	Float float64
	Str   string
}

// Instruction is the common interface implemented by every IR instruction
// variant. It carries no behavior of its own; the code generator type
// switches on the concrete variant.
type Instruction interface {
	irInstruction()
}

// LoadConst loads a compile-time constant into Dst.
type LoadConst struct {
	Dst   Register
	Value Constant
}

// Move copies the value in Src into Dst.
type Move struct {
	Dst Register
	Src Register
}

// BinaryOp computes Lhs Op Rhs (or Lhs Cmp Rhs when Compare is true) and
// stores the result in Dst. A comparison always stores a boolean (I(0|1))
// result regardless of Kind, which still records the operand width used to
// pick the comparison opcode.
type BinaryOp struct {
	Op      Op
	Cmp     Comparator
	Compare bool
	Dst     Register
	Lhs     Register
	Rhs     Register
	Kind    ScalarKind // width tag carried by the originating source operator
}

// UnaryOp computes Op Src and stores the result in Dst.
type UnaryOp struct {
	Op   Op
	Dst  Register
	Src  Register
	Kind ScalarKind
}

// Jump unconditionally transfers control to Label.
type Jump struct {
	Label int
}

// CondJump compares Lhs and Rhs with Comparator and transfers control to
// Label when the comparison holds.
type CondJump struct {
	Cmp   Comparator
	Lhs   Register
	Rhs   Register
	Kind  ScalarKind
	Label int
}

// Label marks an address for later Jump/CondJump resolution. It emits
// no instruction of its own.
type Label struct {
	ID int
}

// Call invokes Callee with Args pushed left-to-right. Dst is nil when the
// callee returns void.
type Call struct {
	Dst    *Register
	Callee string
	Args   []Register
}

// Return exits the current function, optionally carrying a value. Value is
// nil for a void return.
type Return struct {
	Value *Register
}

// LoadGlobal reads the named shared global into Dst. Name is resolved
// against the program's global table at code generation time, not at
// runtime, so two functions referencing the same Name always address the
// same global slot regardless of compilation order.
type LoadGlobal struct {
	Dst  Register
	Name string
	Kind ScalarKind
}

// StoreGlobal writes Src into the named shared global.
type StoreGlobal struct {
	Src  Register
	Name string
}

func (LoadConst) irInstruction()   {}
func (Move) irInstruction()        {}
func (BinaryOp) irInstruction()    {}
func (UnaryOp) irInstruction()     {}
func (Jump) irInstruction()        {}
func (CondJump) irInstruction()    {}
func (Label) irInstruction()       {}
func (Call) irInstruction()        {}
func (Return) irInstruction()      {}
func (LoadGlobal) irInstruction()  {}
func (StoreGlobal) irInstruction() {}

// Function is one compilation unit's worth of typed IR: a name unique
// within the program, its parameter registers and their kinds, a declared
// return kind, and an ordered instruction body.
type Function struct {
	Name       string
	Params     []Register
	ParamKinds []ScalarKind
	ReturnKind ScalarKind
	Body       []Instruction
}
