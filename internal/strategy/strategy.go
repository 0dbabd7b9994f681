// Package strategy decides how a comprehension executes: plain nested
// loops, a vectorized broadcast expression, or a partitioned parallel
// reduction. Loops is the universal fallback; everything else must earn
// its place against the tree shape and the backend's capability table,
// and an infeasible request downgrades with a note, never errors.
package strategy

import (
	"fmt"

	"github.com/roach88/polyglot/internal/ir"
)

// Strategy is the concrete execution form a backend will emit.
type Strategy string

const (
	// Loops is explicit nested iteration with an accumulator. Always
	// available on every backend.
	Loops Strategy = "loops"
	// Broadcast is the vectorized array-expression form.
	Broadcast Strategy = "broadcast"
	// ParallelPartitioned splits the domain into contiguous partitions,
	// computes per-partition partials, and merges in partition-index
	// order.
	ParallelPartitioned Strategy = "parallel"
)

// Mode is the caller-requested execution mode.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeLoops     Mode = "loops"
	ModeBroadcast Mode = "broadcast"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeLoops, ModeBroadcast:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want auto, loops, or broadcast)", s)
	}
}

// Capabilities is a backend's declared support surface. The selector
// only ever downgrades toward Loops when a capability is missing.
type Capabilities struct {
	// Broadcast reports vectorized-expression support.
	Broadcast bool
	// ParallelOps lists the reduction operators the backend can emit in
	// ParallelPartitioned form.
	ParallelOps map[ir.ReduceOp]bool
	// ParallelContainers reports support for parallel shard-merge
	// construction of list/set/dict results.
	ParallelContainers bool
}

// Decision is the selector's output. Notes echo every choice and every
// downgrade; Degraded is true iff a requested optimization was not
// honored.
type Decision struct {
	Strategy Strategy
	Notes    []string
	Degraded bool
}

// Select picks the execution strategy for n under the requested mode
// and parallel flag, validated against caps. Explicit modes are
// overrides that still downgrade (never upgrade) when infeasible.
func Select(n ir.Node, mode Mode, parallel bool, caps Capabilities) Decision {
	var d Decision

	switch mode {
	case ModeBroadcast:
		switch {
		case !BroadcastEligible(n):
			d.Strategy = Loops
			d.Degraded = true
			d.note("broadcast fallback -> loops: shape is not vectorizable")
		case !caps.Broadcast:
			d.Strategy = Loops
			d.Degraded = true
			d.note("broadcast fallback -> loops: backend has no vectorized form")
		default:
			d.Strategy = Broadcast
		}
	case ModeAuto:
		if BroadcastEligible(n) && caps.Broadcast {
			d.Strategy = Broadcast
			d.note("auto-selected broadcast for single-clause arithmetic shape")
		} else {
			d.Strategy = Loops
		}
	default: // ModeLoops and anything unrecognized
		d.Strategy = Loops
	}

	if parallel {
		d.upgradeParallel(n, caps)
	}

	if d.Strategy == Loops {
		d.prepend("strategy: loops (sequential accumulator)")
	} else if d.Strategy == Broadcast {
		d.prepend("strategy: broadcast (vectorized expression)")
	}

	return d
}

// upgradeParallel attempts the ParallelPartitioned upgrade, degrading
// with an explanatory note when the operator or backend rules it out.
func (d *Decision) upgradeParallel(n ir.Node, caps Capabilities) {
	if op, isReduction := ir.ReductionOf(n); isReduction {
		switch {
		case op.ShortCircuit():
			// Any/All stop early; partitioned evaluation would change
			// how much of the domain is observed.
			d.Degraded = true
			d.note("parallel fallback -> sequential: short-circuit operator '%s'", op)
		case !op.Mergeable():
			d.Degraded = true
			d.note("parallel fallback -> sequential: non-associative operator '%s'", op)
		case !caps.ParallelOps[op]:
			d.Degraded = true
			d.note("parallel fallback -> sequential: backend has no parallel form for '%s'", op)
		default:
			d.Strategy = ParallelPartitioned
			d.note("strategy: parallel loops, thread-local partials merged in partition order")
		}
		return
	}

	// Container-building comprehension.
	if !caps.ParallelContainers {
		d.Degraded = true
		d.note("parallel fallback -> sequential: backend has no parallel container construction")
		return
	}
	d.Strategy = ParallelPartitioned
	d.note("strategy: parallel loops, per-partition shards merged in partition order")
}

func (d *Decision) note(format string, args ...any) {
	d.Notes = append(d.Notes, fmt.Sprintf(format, args...))
}

// prepend keeps the headline strategy note first.
func (d *Decision) prepend(head string) {
	d.Notes = append([]string{head}, d.Notes...)
}

// BroadcastEligible reports whether n has the vectorizable shape: a
// single clause over a range, a non-dict result, and element and filter
// expressions built from arithmetic and comparisons only. Conditionals,
// boolean combinators, and record field reads force the loop form.
func BroadcastEligible(n ir.Node) bool {
	if _, isDict := n.(*ir.DictComp); isDict {
		return false
	}
	clauses := ir.Clauses(n)
	if len(clauses) != 1 {
		return false
	}
	if _, isRange := clauses[0].Source.(*ir.RangeSource); !isRange {
		return false
	}

	exprs := []ir.Expr{}
	switch node := n.(type) {
	case *ir.ListComp:
		exprs = append(exprs, node.Element)
	case *ir.SetComp:
		exprs = append(exprs, node.Element)
	case *ir.Reduction:
		exprs = append(exprs, node.Inner.Element)
	}
	exprs = append(exprs, clauses[0].Filters...)

	for _, e := range exprs {
		if !vectorizable(e) {
			return false
		}
	}
	return true
}

func vectorizable(e ir.Expr) bool {
	ok := true
	ir.WalkExprs(e, func(x ir.Expr) bool {
		switch expr := x.(type) {
		case *ir.Conditional, *ir.FieldAccess:
			ok = false
		case *ir.Unary:
			if expr.Op == ir.OpNot {
				ok = false
			}
		case *ir.Binary:
			if expr.Op.Boolean() {
				ok = false
			}
		}
		return ok
	})
	return ok
}
