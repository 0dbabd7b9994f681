// Package eval executes an expression tree directly, sequentially, in
// Go. It is the reference the generated code in every target is
// compared against: identical clause order, truncating division, and
// last-write-wins dict insertion.
package eval

import (
	"math"

	"github.com/roach88/polyglot/internal/ir"
)

// Row is one record of a named collection. Field values are int64 or
// bool.
type Row map[string]any

// Data binds collection names to their records.
type Data map[string][]Row

// Kind discriminates Result payloads.
type Kind string

const (
	KindInt  Kind = "int"
	KindBool Kind = "bool"
	KindList Kind = "list"
	KindSet  Kind = "set"
	KindDict Kind = "dict"
)

// Result is the outcome of one evaluation.
type Result struct {
	Kind Kind
	Int  int64
	Bool bool
	List []int64
	Set  map[int64]struct{}
	Dict map[int64]int64
	// Keys holds dict keys in first-insertion order; values reflect the
	// last write.
	Keys []int64
}

type value struct {
	isBool bool
	isRow  bool
	i      int64
	b      bool
	row    Row
}

func intVal(i int64) value { return value{i: i} }
func boolVal(b bool) value { return value{isBool: true, b: b} }
func rowVal(r Row) value   { return value{isRow: true, row: r} }

type env map[string]value

// Evaluate runs n against data. Collections referenced by the
// expression must be present in data; a typed mismatch or a zero
// divisor is an error.
func Evaluate(n ir.Node, data Data) (*Result, error) {
	ev := &evaluator{data: data, env: env{}}
	switch node := n.(type) {
	case *ir.ListComp:
		res := &Result{Kind: KindList, List: []int64{}}
		err := ev.iterate(node.Clauses, 0, func() (bool, error) {
			v, err := ev.intExpr(node.Element)
			if err != nil {
				return false, err
			}
			res.List = append(res.List, v)
			return true, nil
		})
		return res, done(err)
	case *ir.SetComp:
		res := &Result{Kind: KindSet, Set: map[int64]struct{}{}}
		err := ev.iterate(node.Clauses, 0, func() (bool, error) {
			v, err := ev.intExpr(node.Element)
			if err != nil {
				return false, err
			}
			res.Set[v] = struct{}{}
			return true, nil
		})
		return res, done(err)
	case *ir.DictComp:
		res := &Result{Kind: KindDict, Dict: map[int64]int64{}}
		err := ev.iterate(node.Clauses, 0, func() (bool, error) {
			k, err := ev.intExpr(node.Key)
			if err != nil {
				return false, err
			}
			v, err := ev.intExpr(node.Value)
			if err != nil {
				return false, err
			}
			if _, seen := res.Dict[k]; !seen {
				res.Keys = append(res.Keys, k)
			}
			res.Dict[k] = v
			return true, nil
		})
		return res, done(err)
	case *ir.Reduction:
		return ev.reduce(node)
	default:
		return nil, &Error{Detail: "unknown node shape"}
	}
}

type evaluator struct {
	data Data
	env  env
}

func (ev *evaluator) reduce(node *ir.Reduction) (*Result, error) {
	switch node.Op {
	case ir.ReduceAny, ir.ReduceAll:
		found := node.Op == ir.ReduceAll
		err := ev.iterate(node.Inner.Clauses, 0, func() (bool, error) {
			b, err := ev.boolExpr(node.Inner.Element)
			if err != nil {
				return false, err
			}
			if node.Op == ir.ReduceAny && b {
				found = true
				return false, nil
			}
			if node.Op == ir.ReduceAll && !b {
				found = false
				return false, nil
			}
			return true, nil
		})
		if err := done(err); err != nil {
			return nil, err
		}
		return &Result{Kind: KindBool, Bool: found}, nil
	}

	acc := identity(node.Op)
	err := ev.iterate(node.Inner.Clauses, 0, func() (bool, error) {
		v, err := ev.intExpr(node.Inner.Element)
		if err != nil {
			return false, err
		}
		switch node.Op {
		case ir.ReduceSum:
			acc += v
		case ir.ReduceProduct:
			acc *= v
		case ir.ReduceMax:
			if v > acc {
				acc = v
			}
		case ir.ReduceMin:
			if v < acc {
				acc = v
			}
		}
		return true, nil
	})
	if err := done(err); err != nil {
		return nil, err
	}
	return &Result{Kind: KindInt, Int: acc}, nil
}

func identity(op ir.ReduceOp) int64 {
	switch op {
	case ir.ReduceProduct:
		return 1
	case ir.ReduceMax:
		return math.MinInt64
	case ir.ReduceMin:
		return math.MaxInt64
	default:
		return 0
	}
}

// iterate walks the clause nest left to right, calling visit for every
// surviving binding. visit returning false stops the whole iteration
// without error, for the short-circuit operators.
func (ev *evaluator) iterate(clauses []ir.Clause, idx int, visit func() (bool, error)) error {
	if idx == len(clauses) {
		cont, err := visit()
		if err != nil {
			return err
		}
		if !cont {
			return errStop
		}
		return nil
	}
	cl := clauses[idx]

	step := func(v value) error {
		ev.env[cl.Var] = v
		for _, f := range cl.Filters {
			keep, err := ev.boolExpr(f)
			if err != nil {
				return err
			}
			if !keep {
				return nil
			}
		}
		return ev.iterate(clauses, idx+1, visit)
	}

	var err error
	switch src := cl.Source.(type) {
	case *ir.RangeSource:
		for i, n := src.Start, src.Len(); n > 0; i, n = i+src.Step, n-1 {
			if err = step(intVal(i)); err != nil {
				break
			}
		}
	case *ir.CollectionSource:
		rows, ok := ev.data[src.Name]
		if !ok {
			return &Error{Detail: "no data for collection '" + src.Name + "'"}
		}
		for _, r := range rows {
			if err = step(rowVal(r)); err != nil {
				break
			}
		}
	}
	delete(ev.env, cl.Var)
	return err
}

// errStop unwinds the clause nest when a short-circuit operator has its
// answer.
var errStop = &Error{Detail: "stop"}

func done(err error) error {
	if err == errStop {
		return nil
	}
	return err
}

func (ev *evaluator) intExpr(e ir.Expr) (int64, error) {
	v, err := ev.eval(e)
	if err != nil {
		return 0, err
	}
	if v.isBool || v.isRow {
		return 0, &Error{Detail: "integer expression expected"}
	}
	return v.i, nil
}

func (ev *evaluator) boolExpr(e ir.Expr) (bool, error) {
	v, err := ev.eval(e)
	if err != nil {
		return false, err
	}
	if !v.isBool {
		return false, &Error{Detail: "boolean expression expected"}
	}
	return v.b, nil
}

func (ev *evaluator) eval(e ir.Expr) (value, error) {
	switch expr := e.(type) {
	case *ir.IntLit:
		return intVal(expr.Value), nil
	case *ir.BoolLit:
		return boolVal(expr.Value), nil
	case *ir.VarRef:
		v, ok := ev.env[expr.Name]
		if !ok {
			return value{}, &Error{Detail: "unbound variable '" + expr.Name + "'"}
		}
		return v, nil
	case *ir.FieldAccess:
		base, err := ev.eval(expr.Base)
		if err != nil {
			return value{}, err
		}
		if !base.isRow {
			return value{}, &Error{Detail: "field access on a non-record value"}
		}
		raw, ok := base.row[expr.Field]
		if !ok {
			return value{}, &Error{Detail: "record has no field '" + expr.Field + "'"}
		}
		switch f := raw.(type) {
		case bool:
			return boolVal(f), nil
		case int:
			return intVal(int64(f)), nil
		case int64:
			return intVal(f), nil
		default:
			return value{}, &Error{Detail: "field '" + expr.Field + "' is neither int nor bool"}
		}
	case *ir.Unary:
		v, err := ev.eval(expr.Operand)
		if err != nil {
			return value{}, err
		}
		if expr.Op == ir.OpNot {
			if !v.isBool {
				return value{}, &Error{Detail: "not needs a boolean operand"}
			}
			return boolVal(!v.b), nil
		}
		if v.isBool || v.isRow {
			return value{}, &Error{Detail: "negation needs an integer operand"}
		}
		return intVal(-v.i), nil
	case *ir.Binary:
		return ev.binary(expr)
	case *ir.Conditional:
		cond, err := ev.boolExpr(expr.Cond)
		if err != nil {
			return value{}, err
		}
		if cond {
			return ev.eval(expr.Then)
		}
		return ev.eval(expr.Else)
	default:
		return value{}, &Error{Detail: "unknown expression shape"}
	}
}

func (ev *evaluator) binary(expr *ir.Binary) (value, error) {
	// Boolean combinators short-circuit like every rendered target.
	if expr.Op == ir.OpAnd || expr.Op == ir.OpOr {
		left, err := ev.boolExpr(expr.Left)
		if err != nil {
			return value{}, err
		}
		if expr.Op == ir.OpAnd && !left {
			return boolVal(false), nil
		}
		if expr.Op == ir.OpOr && left {
			return boolVal(true), nil
		}
		right, err := ev.boolExpr(expr.Right)
		if err != nil {
			return value{}, err
		}
		return boolVal(right), nil
	}

	// Equality works on both scalar types; everything else is integers.
	if expr.Op == ir.OpEq || expr.Op == ir.OpNe {
		left, err := ev.eval(expr.Left)
		if err != nil {
			return value{}, err
		}
		right, err := ev.eval(expr.Right)
		if err != nil {
			return value{}, err
		}
		if left.isRow || right.isRow {
			return value{}, &Error{Detail: "records cannot be compared"}
		}
		if left.isBool != right.isBool {
			return value{}, &Error{Detail: "equality operands must share a type"}
		}
		var eq bool
		if left.isBool {
			eq = left.b == right.b
		} else {
			eq = left.i == right.i
		}
		if expr.Op == ir.OpNe {
			eq = !eq
		}
		return boolVal(eq), nil
	}

	l, err := ev.intExpr(expr.Left)
	if err != nil {
		return value{}, err
	}
	r, err := ev.intExpr(expr.Right)
	if err != nil {
		return value{}, err
	}
	switch expr.Op {
	case ir.OpAdd:
		return intVal(l + r), nil
	case ir.OpSub:
		return intVal(l - r), nil
	case ir.OpMul:
		return intVal(l * r), nil
	case ir.OpDiv:
		if r == 0 {
			return value{}, &Error{Detail: "division by zero"}
		}
		return intVal(l / r), nil
	case ir.OpMod:
		if r == 0 {
			return value{}, &Error{Detail: "modulo by zero"}
		}
		return intVal(l % r), nil
	case ir.OpLt:
		return boolVal(l < r), nil
	case ir.OpLe:
		return boolVal(l <= r), nil
	case ir.OpGt:
		return boolVal(l > r), nil
	case ir.OpGe:
		return boolVal(l >= r), nil
	default:
		return value{}, &Error{Detail: "unknown operator"}
	}
}
