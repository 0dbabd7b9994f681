// Package typeinfo annotates IR trees with inferred types.
//
// Inference walks the tree bottom-up, resolving literals and ranges to
// the configured integer width and propagating through operators.
// Collections without a schema yield Unknown element types; backends
// that need static types take their dynamically-typed path for exactly
// those subtrees. Inference is a pure function: the same tree, width,
// strictness, and schemas always produce an identical Info.
package typeinfo

import (
	"fmt"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/schema"
)

// Kind classifies a type descriptor.
type Kind string

const (
	KindInt     Kind = "int"
	KindBool    Kind = "bool"
	KindFloat   Kind = "float" // never produced by inference; reserved for descriptors
	KindUnknown Kind = "unknown"
	KindSeq     Kind = "seq"
	KindSet     Kind = "set"
	KindMap     Kind = "map"
	KindRecord  Kind = "record"
)

// Type is an inferred type descriptor. Scalar kinds stand alone;
// container kinds carry element/key/value subtypes; Record carries the
// schema of the collection the record came from.
type Type struct {
	Kind   Kind
	Width  int   // KindInt only: 32 or 64
	Elem   *Type // KindSeq, KindSet
	Key    *Type // KindMap
	Value  *Type // KindMap
	Record *schema.Collection // KindRecord
}

func Int(width int) Type   { return Type{Kind: KindInt, Width: width} }
func Bool() Type           { return Type{Kind: KindBool} }
func Unknown() Type        { return Type{Kind: KindUnknown} }
func SeqOf(elem Type) Type { return Type{Kind: KindSeq, Elem: &elem} }
func SetOf(elem Type) Type { return Type{Kind: KindSet, Elem: &elem} }
func MapOf(key, value Type) Type {
	return Type{Kind: KindMap, Key: &key, Value: &value}
}
func RecordOf(coll *schema.Collection) Type {
	return Type{Kind: KindRecord, Record: coll}
}

// IsUnknown reports whether t is the unknown scalar.
func (t Type) IsUnknown() bool { return t.Kind == KindUnknown }

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Width != o.Width {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) || (t.Elem != nil && !t.Elem.Equal(*o.Elem)) {
		return false
	}
	if (t.Key == nil) != (o.Key == nil) || (t.Key != nil && !t.Key.Equal(*o.Key)) {
		return false
	}
	if (t.Value == nil) != (o.Value == nil) || (t.Value != nil && !t.Value.Equal(*o.Value)) {
		return false
	}
	if t.Kind == KindRecord {
		tn, on := "", ""
		if t.Record != nil {
			tn = t.Record.Name
		}
		if o.Record != nil {
			on = o.Record.Name
		}
		return tn == on
	}
	return true
}

func (t Type) String() string {
	switch t.Kind {
	case KindInt:
		return fmt.Sprintf("int%d", t.Width)
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	case KindUnknown:
		return "unknown"
	case KindSeq:
		return fmt.Sprintf("seq[%s]", t.Elem)
	case KindSet:
		return fmt.Sprintf("set[%s]", t.Elem)
	case KindMap:
		return fmt.Sprintf("map[%s]%s", t.Key, t.Value)
	case KindRecord:
		if t.Record != nil {
			return fmt.Sprintf("record(%s)", t.Record.Name)
		}
		return "record"
	default:
		return string(t.Kind)
	}
}

// Options configures one inference run.
type Options struct {
	// IntWidth is the concrete integer width, 32 or 64. Zero means 64.
	IntWidth int
	// Strict makes residual type ambiguity fatal instead of Unknown.
	Strict bool
	// Schemas maps collection names to compiled record schemas. A
	// collection absent from the map gets an Unknown element type.
	Schemas map[string]*schema.Collection
}

// Info is the result of one inference run. Expression types are keyed
// on node identity; all Expr implementations are pointer types.
type Info struct {
	// Result is the type of the whole expression's value.
	Result Type
	// Element is the element type of the inner domain (the derived
	// element for list/set/reduction, unset for dict).
	Element Type
	// Key and Value are set for dict comprehensions only.
	Key   Type
	Value Type
	// Accumulator is set for reductions only.
	Accumulator Type
	// Vars maps each clause-bound variable to its type. Backends use it
	// for signatures and record struct declarations.
	Vars map[string]Type
	// Warnings lists non-fatal ambiguities in tree-walk order.
	Warnings []string

	exprs map[ir.Expr]Type
}

// ExprType returns the inferred type of e, or Unknown when e was not
// part of the inferred tree.
func (info *Info) ExprType(e ir.Expr) Type {
	if t, ok := info.exprs[e]; ok {
		return t
	}
	return Unknown()
}

// Infer annotates n with types. Non-strict ambiguity surfaces as
// Unknown plus a warning on Info; strict ambiguity is a fatal *Error.
func Infer(n ir.Node, opts Options) (*Info, error) {
	width := opts.IntWidth
	if width == 0 {
		width = 64
	}
	if width != 32 && width != 64 {
		return nil, newError(CodeBadWidth, "integer width must be 32 or 64, got %d", opts.IntWidth)
	}

	inf := &inferencer{
		opts:  opts,
		width: width,
		env:   map[string]Type{},
		info:  &Info{Vars: map[string]Type{}, exprs: map[ir.Expr]Type{}},
	}
	if err := inf.bindClauses(ir.Clauses(n)); err != nil {
		return nil, err
	}

	switch node := n.(type) {
	case *ir.ListComp:
		elem, err := inf.expr(node.Element)
		if err != nil {
			return nil, err
		}
		inf.info.Element = elem
		inf.info.Result = SeqOf(elem)
	case *ir.SetComp:
		elem, err := inf.expr(node.Element)
		if err != nil {
			return nil, err
		}
		inf.info.Element = elem
		inf.info.Result = SetOf(elem)
	case *ir.DictComp:
		key, err := inf.expr(node.Key)
		if err != nil {
			return nil, err
		}
		value, err := inf.expr(node.Value)
		if err != nil {
			return nil, err
		}
		inf.info.Key, inf.info.Value = key, value
		inf.info.Result = MapOf(key, value)
	case *ir.Reduction:
		elem, err := inf.expr(node.Inner.Element)
		if err != nil {
			return nil, err
		}
		inf.info.Element = elem
		acc, err := inf.accumulator(node.Op, elem)
		if err != nil {
			return nil, err
		}
		inf.info.Accumulator = acc
		inf.info.Result = acc
	default:
		return nil, newError(CodeInternal, "unrecognized node kind %T", n)
	}

	return inf.info, nil
}

type inferencer struct {
	opts  Options
	width int
	env   map[string]Type
	info  *Info
}

// bindClauses types each bound variable and checks filter predicates.
// Clause order matters: an inner clause's filters may reference outer
// variables, so binding happens before filter inference.
func (inf *inferencer) bindClauses(clauses []ir.Clause) error {
	for _, cl := range clauses {
		switch src := cl.Source.(type) {
		case *ir.RangeSource:
			inf.env[cl.Var] = Int(inf.width)
		case *ir.CollectionSource:
			if coll, ok := inf.opts.Schemas[src.Name]; ok {
				inf.env[cl.Var] = RecordOf(coll)
			} else {
				inf.env[cl.Var] = Unknown()
			}
		default:
			return newError(CodeInternal, "unrecognized source kind %T", cl.Source)
		}
		inf.info.Vars[cl.Var] = inf.env[cl.Var]

		for _, filter := range cl.Filters {
			ft, err := inf.expr(filter)
			if err != nil {
				return err
			}
			if ft.Kind != KindBool && !ft.IsUnknown() {
				if err := inf.ambiguous("filter predicate has type %s, want bool", ft); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (inf *inferencer) accumulator(op ir.ReduceOp, elem Type) (Type, error) {
	switch op {
	case ir.ReduceSum, ir.ReduceProduct, ir.ReduceMax, ir.ReduceMin:
		if elem.Kind == KindBool {
			if err := inf.ambiguous("%s over boolean elements", op); err != nil {
				return Unknown(), err
			}
			return Unknown(), nil
		}
		return elem, nil
	case ir.ReduceAny, ir.ReduceAll:
		if elem.Kind != KindBool && !elem.IsUnknown() {
			if err := inf.ambiguous("%s requires boolean elements, got %s", op, elem); err != nil {
				return Unknown(), err
			}
		}
		return Bool(), nil
	default:
		return Unknown(), newError(CodeInternal, "unrecognized reduction op %q", op)
	}
}

// expr infers the type of e and records it in the Info mapping.
func (inf *inferencer) expr(e ir.Expr) (Type, error) {
	t, err := inf.exprInner(e)
	if err != nil {
		return Unknown(), err
	}
	inf.info.exprs[e] = t
	return t, nil
}

func (inf *inferencer) exprInner(e ir.Expr) (Type, error) {
	switch expr := e.(type) {
	case *ir.IntLit:
		return Int(inf.width), nil

	case *ir.BoolLit:
		return Bool(), nil

	case *ir.VarRef:
		if t, ok := inf.env[expr.Name]; ok {
			return t, nil
		}
		if err := inf.ambiguous("unbound variable %q", expr.Name); err != nil {
			return Unknown(), err
		}
		return Unknown(), nil

	case *ir.FieldAccess:
		base, err := inf.expr(expr.Base)
		if err != nil {
			return Unknown(), err
		}
		switch base.Kind {
		case KindRecord:
			ft, ok := base.Record.Fields[expr.Field]
			if !ok {
				if err := inf.ambiguous("collection %q has no field %q", base.Record.Name, expr.Field); err != nil {
					return Unknown(), err
				}
				return Unknown(), nil
			}
			if ft == schema.FieldBool {
				return Bool(), nil
			}
			return Int(inf.width), nil
		case KindUnknown:
			// Schema-less collection. Dynamic path, no warning.
			return Unknown(), nil
		default:
			if err := inf.ambiguous("field access on non-record type %s", base); err != nil {
				return Unknown(), err
			}
			return Unknown(), nil
		}

	case *ir.Unary:
		operand, err := inf.expr(expr.Operand)
		if err != nil {
			return Unknown(), err
		}
		switch expr.Op {
		case ir.OpNeg:
			if operand.Kind == KindInt || operand.IsUnknown() {
				return operand, nil
			}
			if err := inf.ambiguous("negation of %s", operand); err != nil {
				return Unknown(), err
			}
			return Unknown(), nil
		case ir.OpNot:
			if operand.Kind == KindBool || operand.IsUnknown() {
				return Bool(), nil
			}
			if err := inf.ambiguous("logical not of %s", operand); err != nil {
				return Unknown(), err
			}
			return Unknown(), nil
		default:
			return Unknown(), newError(CodeInternal, "unrecognized unary op %q", expr.Op)
		}

	case *ir.Binary:
		left, err := inf.expr(expr.Left)
		if err != nil {
			return Unknown(), err
		}
		right, err := inf.expr(expr.Right)
		if err != nil {
			return Unknown(), err
		}
		return inf.binary(expr.Op, left, right)

	case *ir.Conditional:
		cond, err := inf.expr(expr.Cond)
		if err != nil {
			return Unknown(), err
		}
		if cond.Kind != KindBool && !cond.IsUnknown() {
			if err := inf.ambiguous("conditional test has type %s, want bool", cond); err != nil {
				return Unknown(), err
			}
		}
		then, err := inf.expr(expr.Then)
		if err != nil {
			return Unknown(), err
		}
		els, err := inf.expr(expr.Else)
		if err != nil {
			return Unknown(), err
		}
		switch {
		case then.Equal(els):
			return then, nil
		case then.IsUnknown():
			return els, nil
		case els.IsUnknown():
			return then, nil
		default:
			if err := inf.ambiguous("conditional branches disagree: %s vs %s", then, els); err != nil {
				return Unknown(), err
			}
			return Unknown(), nil
		}

	default:
		return Unknown(), newError(CodeInternal, "unrecognized expr kind %T", e)
	}
}

func (inf *inferencer) binary(op ir.BinaryOp, left, right Type) (Type, error) {
	switch {
	case op.Arithmetic():
		if left.Kind == KindInt && right.Kind == KindInt {
			return Int(inf.width), nil
		}
		if left.IsUnknown() || right.IsUnknown() {
			return Unknown(), nil
		}
		if err := inf.ambiguous("arithmetic %s on %s and %s", op, left, right); err != nil {
			return Unknown(), err
		}
		return Unknown(), nil

	case op.Comparison():
		// Ordering comparisons need integers; eq/ne accept matching kinds.
		ordered := op != ir.OpEq && op != ir.OpNe
		ok := false
		switch {
		case left.IsUnknown() || right.IsUnknown():
			ok = true
		case left.Kind == KindInt && right.Kind == KindInt:
			ok = true
		case !ordered && left.Kind == KindBool && right.Kind == KindBool:
			ok = true
		}
		if !ok {
			if err := inf.ambiguous("comparison %s on %s and %s", op, left, right); err != nil {
				return Unknown(), err
			}
		}
		return Bool(), nil

	case op.Boolean():
		for _, t := range []Type{left, right} {
			if t.Kind != KindBool && !t.IsUnknown() {
				if err := inf.ambiguous("boolean %s on operand of type %s", op, t); err != nil {
					return Unknown(), err
				}
			}
		}
		return Bool(), nil

	default:
		return Unknown(), newError(CodeInternal, "unrecognized binary op %q", op)
	}
}

// ambiguous records a residual ambiguity: fatal under Strict, a warning
// otherwise.
func (inf *inferencer) ambiguous(format string, args ...any) error {
	if inf.opts.Strict {
		return newError(CodeAmbiguous, format, args...)
	}
	inf.info.Warnings = append(inf.info.Warnings, fmt.Sprintf(format, args...))
	return nil
}
