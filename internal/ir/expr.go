package ir

// Expr is the sealed scalar-expression union.
//
// Expr kinds:
//   - *IntLit, *BoolLit: literals (the grammar has no float or string literals)
//   - *VarRef:           a clause-bound variable
//   - *FieldAccess:      attribute projection on a record-bound variable
//   - *Unary:            negation, logical not
//   - *Binary:           arithmetic, comparison, boolean combinators
//   - *Conditional:      ternary conditional
//
// All implementations are pointer types, so interface equality is node
// identity; the type inferencer keys its per-expression mapping on it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// IntLit is an integer literal. Always int64 in the IR; the configured
// integer width applies at inference and emission time, not here.
type IntLit struct {
	Value int64
}

func (*IntLit) exprNode() {}

// BoolLit is a boolean literal.
type BoolLit struct {
	Value bool
}

func (*BoolLit) exprNode() {}

// VarRef references a clause-bound variable by name.
type VarRef struct {
	Name string
}

func (*VarRef) exprNode() {}

// FieldAccess reads a named field of a structured record, e.g. r.price
// where r is bound over a named collection.
type FieldAccess struct {
	Base  Expr // always a *VarRef in trees built by the parser
	Field string
}

func (*FieldAccess) exprNode() {}

// UnaryOp identifies a unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "neg"
	OpNot UnaryOp = "not"
)

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

func (*Unary) exprNode() {}

// BinaryOp identifies a binary operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "add"
	OpSub BinaryOp = "sub"
	OpMul BinaryOp = "mul"
	OpDiv BinaryOp = "div" // truncating integer division (surface syntax //)
	OpMod BinaryOp = "mod"

	OpEq BinaryOp = "eq"
	OpNe BinaryOp = "ne"
	OpLt BinaryOp = "lt"
	OpLe BinaryOp = "le"
	OpGt BinaryOp = "gt"
	OpGe BinaryOp = "ge"

	OpAnd BinaryOp = "and"
	OpOr  BinaryOp = "or"
)

// Arithmetic reports whether op combines integers into an integer.
func (op BinaryOp) Arithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return true
	default:
		return false
	}
}

// Comparison reports whether op compares two operands into a boolean.
func (op BinaryOp) Comparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	default:
		return false
	}
}

// Boolean reports whether op is a boolean combinator.
func (op BinaryOp) Boolean() bool {
	return op == OpAnd || op == OpOr
}

// Binary applies a binary operator.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*Binary) exprNode() {}

// Conditional is the ternary conditional: Then if Cond is true, else Else.
type Conditional struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*Conditional) exprNode() {}

// WalkExprs calls fn for e and every expression beneath it, pre-order.
// Walking stops early when fn returns false.
func WalkExprs(e Expr, fn func(Expr) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	switch expr := e.(type) {
	case *IntLit, *BoolLit, *VarRef:
		return true
	case *FieldAccess:
		return WalkExprs(expr.Base, fn)
	case *Unary:
		return WalkExprs(expr.Operand, fn)
	case *Binary:
		return WalkExprs(expr.Left, fn) && WalkExprs(expr.Right, fn)
	case *Conditional:
		return WalkExprs(expr.Cond, fn) && WalkExprs(expr.Then, fn) && WalkExprs(expr.Else, fn)
	default:
		return true
	}
}
