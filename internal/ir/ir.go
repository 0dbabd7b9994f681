package ir

// Node is the sealed root of the IR: one comprehension shape, or a
// reduction wrapping one.
//
// Node kinds:
//   - *ListComp:  ordered sequence of derived elements
//   - *SetComp:   deduplicated collection of derived elements
//   - *DictComp:  key/value mapping with sequential-overwrite semantics
//   - *Reduction: a comprehension collapsed to a scalar (Sum, Product, ...)
//
// A bare comprehension never carries a reduction wrapper; a *Reduction
// always has a non-nil inner comprehension.
type Node interface {
	irNode() // Marker method - seals interface to this package
}

// ReduceOp identifies a built-in reduction operator.
type ReduceOp string

const (
	ReduceSum     ReduceOp = "sum"
	ReduceProduct ReduceOp = "prod"
	ReduceMax     ReduceOp = "max"
	ReduceMin     ReduceOp = "min"
	ReduceAny     ReduceOp = "any"
	ReduceAll     ReduceOp = "all"
)

// Mergeable reports whether partial results of op computed over disjoint
// sub-domains can be combined, in any grouping, to the sequential result.
// These are the only operators the selector will ever parallelize.
func (op ReduceOp) Mergeable() bool {
	switch op {
	case ReduceSum, ReduceProduct, ReduceMax, ReduceMin:
		return true
	default:
		return false
	}
}

// ShortCircuit reports whether op's sequential evaluation can stop early.
// Short-circuiting operators are never given a parallel strategy.
func (op ReduceOp) ShortCircuit() bool {
	return op == ReduceAny || op == ReduceAll
}

// ValidReduceOps defines the recognized reduction operators.
var ValidReduceOps = map[ReduceOp]bool{
	ReduceSum:     true,
	ReduceProduct: true,
	ReduceMax:     true,
	ReduceMin:     true,
	ReduceAny:     true,
	ReduceAll:     true,
}

// ListComp produces an ordered sequence: one derived element per surviving
// iteration, in clause-nesting order.
type ListComp struct {
	Clauses []Clause
	Element Expr
}

func (*ListComp) irNode() {}

// SetComp produces a deduplicated collection of derived elements.
type SetComp struct {
	Clauses []Clause
	Element Expr
}

func (*SetComp) irNode() {}

// DictComp produces a key/value mapping. When the key expression is not
// injective over the domain, the later-visited assignment wins, exactly
// mirroring sequential left-to-right overwrite. Every backend and every
// parallel shard merge must reproduce that winner.
type DictComp struct {
	Clauses []Clause
	Key     Expr
	Value   Expr
}

func (*DictComp) irNode() {}

// Reduction collapses the inner comprehension's sequence to a scalar.
// Sum/Product/Max/Min inherit the element type; Any/All are boolean.
type Reduction struct {
	Op    ReduceOp
	Inner *ListComp
}

func (*Reduction) irNode() {}

// Clause is one generator clause: a bound variable, its iteration source,
// and an ordered list of filter predicates. Multiple clauses express
// nested iteration; clause order is the fixed outer-to-inner nesting order
// and must be preserved by every backend (Cartesian semantics, not a
// re-orderable join).
type Clause struct {
	Var     string
	Source  Source
	Filters []Expr
}

// Source is the sealed iteration-source union.
//
// Source kinds:
//   - *RangeSource:      bounded numeric range (start, stop, step)
//   - *CollectionSource: named external collection of structured records
type Source interface {
	sourceNode() // Marker method - seals interface to this package
}

// RangeSource is a bounded half-open numeric range. Step is never zero;
// a negative step counts down toward Stop.
type RangeSource struct {
	Start int64
	Stop  int64
	Step  int64
}

func (*RangeSource) sourceNode() {}

// Len returns the number of iterations the range produces.
func (r *RangeSource) Len() int64 {
	if r.Step == 0 {
		return 0
	}
	var span, step int64
	if r.Step > 0 {
		span, step = r.Stop-r.Start, r.Step
	} else {
		span, step = r.Start-r.Stop, -r.Step
	}
	if span <= 0 {
		return 0
	}
	return (span + step - 1) / step
}

// CollectionSource names an external collection of structured records.
// Record fields are read through *FieldAccess on the bound variable.
type CollectionSource struct {
	Name string
}

func (*CollectionSource) sourceNode() {}

// Clauses returns the generator clauses of any node kind, unwrapping a
// reduction. The returned slice is the tree's own storage: read-only.
func Clauses(n Node) []Clause {
	switch node := n.(type) {
	case *ListComp:
		return node.Clauses
	case *SetComp:
		return node.Clauses
	case *DictComp:
		return node.Clauses
	case *Reduction:
		return node.Inner.Clauses
	default:
		return nil
	}
}

// ReductionOf returns the reduction operator, or "" for bare comprehensions.
func ReductionOf(n Node) (ReduceOp, bool) {
	if red, ok := n.(*Reduction); ok {
		return red.Op, true
	}
	return "", false
}
