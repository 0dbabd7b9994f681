// Package juliagen emits Julia source. The loops form is an explicit for
// loop; the broadcast form rebinds the loop variable to a range vector
// and applies dotted operators; the parallel form splits the index space
// across Threads.@threads with an ordered merge. The unsafe flag puts
// @inbounds @simd on the hot loop.
package juliagen

import (
	"fmt"
	"strings"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

const backendName = "julia"

type backend struct{}

func init() { render.Register(backend{}) }

func (backend) Name() string { return backendName }

func (backend) Capabilities() strategy.Capabilities {
	return strategy.Capabilities{
		Broadcast: true,
		ParallelOps: map[ir.ReduceOp]bool{
			ir.ReduceSum:     true,
			ir.ReduceProduct: true,
			ir.ReduceMax:     true,
			ir.ReduceMin:     true,
		},
		ParallelContainers: true,
	}
}

func (backend) Render(n ir.Node, info *typeinfo.Info, dec strategy.Decision, req render.Request) (*render.Artifact, error) {
	g := &gen{
		w:   render.NewWriter("    "),
		n:   n,
		req: req,
		p:   newPrinter(n, info, req.IntWidth),
	}

	var err error
	switch dec.Strategy {
	case strategy.Loops:
		g.emitFunction(dec, func() { g.emitLoops() })
	case strategy.Broadcast:
		g.emitFunction(dec, func() { err = g.emitBroadcast() })
	case strategy.ParallelPartitioned:
		g.emitFunction(dec, func() { err = g.emitParallel() })
	default:
		return nil, render.Errorf(backendName, dec.Strategy, "no %s form", dec.Strategy)
	}
	if err != nil {
		return nil, err
	}

	return &render.Artifact{Code: g.w.String()}, nil
}

type gen struct {
	w   *render.Writer
	n   ir.Node
	req render.Request
	p   *printer
}

func (g *gen) clauses() []ir.Clause { return ir.Clauses(g.n) }

func (g *gen) emitFunction(dec strategy.Decision, body func()) {
	for _, note := range dec.Notes {
		g.w.Linef("# %s", note)
	}
	for _, name := range g.p.typedCollections() {
		coll := g.p.schemaOf(name)
		g.w.Block(fmt.Sprintf("struct %s", rowStruct(name)), "end", func() {
			for _, field := range coll.FieldNames() {
				g.w.Linef("%s::%s", field, g.p.fieldType(coll.Fields[field]))
			}
		})
		g.w.Blank()
	}
	g.w.Block(fmt.Sprintf("function %s(%s)", g.req.FuncName, g.params()), "end", body)
}

func (g *gen) params() string {
	var parts []string
	for _, cl := range g.clauses() {
		src, ok := cl.Source.(*ir.CollectionSource)
		if !ok {
			continue
		}
		if g.p.isTyped(cl.Var) {
			parts = append(parts, fmt.Sprintf("%s::Vector{%s}", src.Name, rowStruct(src.Name)))
		} else {
			parts = append(parts, fmt.Sprintf("%s::Vector{Dict{String, %s}}", src.Name, g.p.intType))
		}
	}
	return strings.Join(parts, ", ")
}

func (g *gen) emitLoops() {
	g.prologue("acc", "out")
	g.emitClauseLoop(0, g.req.Unsafe, g.body)
	g.epilogue()
}

func (g *gen) prologue(acc, out string) {
	it := g.p.intType
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("%s = %s[]", out, g.p.scalarType(node.Element))
	case *ir.SetComp:
		g.w.Linef("%s = Set{%s}()", out, g.p.scalarType(node.Element))
	case *ir.DictComp:
		g.w.Linef("%s = Dict{%s, %s}()", out, g.p.scalarType(node.Key), g.p.scalarType(node.Value))
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("%s = %s(0)", acc, it)
		case ir.ReduceProduct:
			g.w.Linef("%s = %s(1)", acc, it)
		case ir.ReduceMax:
			g.w.Linef("%s = typemin(%s)", acc, it)
		case ir.ReduceMin:
			g.w.Linef("%s = typemax(%s)", acc, it)
		}
	}
}

func (g *gen) epilogue() {
	switch node := g.n.(type) {
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceAny:
			g.w.Linef("return false")
		case ir.ReduceAll:
			g.w.Linef("return true")
		default:
			g.w.Linef("return acc")
		}
	default:
		g.w.Linef("return out")
	}
}

func (g *gen) body() {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("push!(out, %s)", g.p.expr(node.Element))
	case *ir.SetComp:
		g.w.Linef("push!(out, %s)", g.p.expr(node.Element))
	case *ir.DictComp:
		g.w.Linef("out[%s] = %s", g.p.expr(node.Key), g.p.expr(node.Value))
	case *ir.Reduction:
		g.accumulate(node, "acc")
	}
}

func (g *gen) accumulate(node *ir.Reduction, acc string) {
	elem := g.p.expr(node.Inner.Element)
	switch node.Op {
	case ir.ReduceSum:
		g.w.Linef("%s += %s", acc, elem)
	case ir.ReduceProduct:
		g.w.Linef("%s *= %s", acc, elem)
	case ir.ReduceMax:
		g.w.Linef("%s = max(%s, %s)", acc, acc, elem)
	case ir.ReduceMin:
		g.w.Linef("%s = min(%s, %s)", acc, acc, elem)
	case ir.ReduceAny:
		g.w.Block(fmt.Sprintf("if %s", elem), "end", func() {
			g.w.Linef("return true")
		})
	case ir.ReduceAll:
		g.w.Block(fmt.Sprintf("if !(%s)", elem), "end", func() {
			g.w.Linef("return false")
		})
	}
}

// emitClauseLoop nests one for loop per clause. hot marks the outermost
// loop for @inbounds @simd when requested; filters and short-circuit
// returns keep @simd off the loops that contain them.
func (g *gen) emitClauseLoop(idx int, hot bool, innermost func()) {
	clauses := g.clauses()
	if idx == len(clauses) {
		innermost()
		return
	}
	cl := clauses[idx]

	inner := func() {
		for _, f := range cl.Filters {
			g.w.Block(fmt.Sprintf("if !(%s)", g.p.expr(f)), "end", func() {
				g.w.Linef("continue")
			})
		}
		g.emitClauseLoop(idx+1, false, innermost)
	}

	prefix := ""
	if hot && g.simdSafe(cl) {
		prefix = "@inbounds @simd "
	}

	switch src := cl.Source.(type) {
	case *ir.RangeSource:
		g.w.Block(fmt.Sprintf("%sfor %s in %s", prefix, cl.Var, rangeLiteral(src)), "end", inner)
	case *ir.CollectionSource:
		g.w.Block(fmt.Sprintf("%sfor %s in %s", prefix, cl.Var, src.Name), "end", inner)
	}
}

// simdSafe rejects loops whose body branches: filters and the early
// returns of any/all are incompatible with @simd.
func (g *gen) simdSafe(cl ir.Clause) bool {
	if len(cl.Filters) > 0 || len(g.clauses()) > 1 {
		return false
	}
	if node, ok := g.n.(*ir.Reduction); ok && node.Op.ShortCircuit() {
		return false
	}
	return true
}

// emitBroadcast rebinds the clause variable to the range vector, masks
// it with the dotted filters and applies the dotted element expression.
func (g *gen) emitBroadcast() error {
	cl := g.clauses()[0]
	src, ok := cl.Source.(*ir.RangeSource)
	if !ok {
		return render.Errorf(backendName, strategy.Broadcast, "broadcast form needs a range source")
	}

	g.w.Linef("%s = %s", cl.Var, rangeLiteral(src))
	for _, f := range cl.Filters {
		g.w.Linef("%s = %s[%s]", cl.Var, cl.Var, g.p.dotted(f))
	}

	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("return collect(%s)", g.p.dotted(node.Element))
	case *ir.SetComp:
		g.w.Linef("return Set(%s)", g.p.dotted(node.Element))
	case *ir.Reduction:
		elem := g.p.dotted(node.Inner.Element)
		it := g.p.intType
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("return sum(%s; init = %s(0))", elem, it)
		case ir.ReduceProduct:
			g.w.Linef("return prod(%s; init = %s(1))", elem, it)
		case ir.ReduceMax:
			g.w.Linef("return reduce(max, %s; init = typemin(%s))", elem, it)
		case ir.ReduceMin:
			g.w.Linef("return reduce(min, %s; init = typemax(%s))", elem, it)
		case ir.ReduceAny:
			g.w.Linef("return any(%s)", elem)
		case ir.ReduceAll:
			g.w.Linef("return all(%s)", elem)
		}
	default:
		return render.Errorf(backendName, strategy.Broadcast, "broadcast form does not build dicts")
	}
	return nil
}

// emitParallel splits the outer range into contiguous partitions, one
// task per worker, and merges the per-partition results in partition
// index order.
func (g *gen) emitParallel() error {
	clauses := g.clauses()
	src, ok := clauses[0].Source.(*ir.RangeSource)
	if !ok {
		return render.Errorf(backendName, strategy.ParallelPartitioned, "parallel form needs a range outer clause")
	}

	it := g.p.intType
	g.w.Linef("total = %s(%d)", it, src.Len())
	g.w.Linef("workers = max(min(Threads.nthreads(), Int(total)), 1)")
	g.w.Linef("chunk = cld(total, workers)")
	g.emitPartials()

	g.w.Block("Threads.@threads for w in 1:workers", "end", func() {
		g.w.Linef("lo = (w - 1) * chunk")
		g.w.Linef("hi = min(lo + chunk, total)")
		g.partialPrologue()
		hot := g.req.Unsafe && g.simdSafe(clauses[0])
		prefix := ""
		if hot {
			prefix = "@inbounds @simd "
		}
		g.w.Block(fmt.Sprintf("%sfor k in lo:hi-1", prefix), "end", func() {
			g.w.Linef("%s = %s(%d) + k * %s(%d)", clauses[0].Var, it, src.Start, it, src.Step)
			for _, f := range clauses[0].Filters {
				g.w.Block(fmt.Sprintf("if !(%s)", g.p.expr(f)), "end", func() {
					g.w.Linef("continue")
				})
			}
			g.emitClauseLoop(1, false, g.partialBody)
		})
		g.partialStore()
	})

	g.emitMerge()
	return nil
}

func (g *gen) emitPartials() {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("shards = [%s[] for _ in 1:workers]", g.p.scalarType(node.Element))
	case *ir.SetComp:
		g.w.Linef("shards = [Set{%s}() for _ in 1:workers]", g.p.scalarType(node.Element))
	case *ir.DictComp:
		g.w.Linef("shards = [Dict{%s, %s}() for _ in 1:workers]",
			g.p.scalarType(node.Key), g.p.scalarType(node.Value))
	case *ir.Reduction:
		g.w.Linef("partials = fill(%s, workers)", g.p.identity(node.Op))
	}
}

func (g *gen) partialPrologue() {
	switch node := g.n.(type) {
	case *ir.Reduction:
		g.w.Linef("acc = %s", g.p.identity(node.Op))
	case *ir.ListComp:
		g.w.Linef("shard = %s[]", g.p.scalarType(node.Element))
	case *ir.SetComp:
		g.w.Linef("shard = Set{%s}()", g.p.scalarType(node.Element))
	case *ir.DictComp:
		g.w.Linef("shard = Dict{%s, %s}()", g.p.scalarType(node.Key), g.p.scalarType(node.Value))
	}
}

func (g *gen) partialBody() {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("push!(shard, %s)", g.p.expr(node.Element))
	case *ir.SetComp:
		g.w.Linef("push!(shard, %s)", g.p.expr(node.Element))
	case *ir.DictComp:
		g.w.Linef("shard[%s] = %s", g.p.expr(node.Key), g.p.expr(node.Value))
	case *ir.Reduction:
		g.accumulate(node, "acc")
	}
}

func (g *gen) partialStore() {
	switch g.n.(type) {
	case *ir.Reduction:
		g.w.Linef("partials[w] = acc")
	default:
		g.w.Linef("shards[w] = shard")
	}
}

func (g *gen) emitMerge() {
	switch node := g.n.(type) {
	case *ir.Reduction:
		g.w.Linef("result = %s", g.p.identity(node.Op))
		g.w.Block("for partial in partials", "end", func() {
			switch node.Op {
			case ir.ReduceSum:
				g.w.Linef("result += partial")
			case ir.ReduceProduct:
				g.w.Linef("result *= partial")
			case ir.ReduceMax:
				g.w.Linef("result = max(result, partial)")
			case ir.ReduceMin:
				g.w.Linef("result = min(result, partial)")
			}
		})
		g.w.Linef("return result")
	case *ir.ListComp:
		g.w.Linef("out = %s[]", g.p.scalarType(node.Element))
		g.w.Block("for shard in shards", "end", func() {
			g.w.Linef("append!(out, shard)")
		})
		g.w.Linef("return out")
	case *ir.SetComp:
		g.w.Linef("out = Set{%s}()", g.p.scalarType(node.Element))
		g.w.Block("for shard in shards", "end", func() {
			g.w.Linef("union!(out, shard)")
		})
		g.w.Linef("return out")
	case *ir.DictComp:
		g.w.Linef("out = Dict{%s, %s}()", g.p.scalarType(node.Key), g.p.scalarType(node.Value))
		// Later partitions overwrite earlier ones, matching the
		// sequential insertion order.
		g.w.Block("for shard in shards", "end", func() {
			g.w.Linef("merge!(out, shard)")
		})
		g.w.Linef("return out")
	}
}

// rangeLiteral prints the half-open span as an inclusive Julia range.
func rangeLiteral(src *ir.RangeSource) string {
	if src.Step == 1 {
		return fmt.Sprintf("%d:%d", src.Start, src.Stop-1)
	}
	if src.Step > 0 {
		return fmt.Sprintf("%d:%d:%d", src.Start, src.Step, src.Stop-1)
	}
	return fmt.Sprintf("%d:%d:%d", src.Start, src.Step, src.Stop+1)
}

func rowStruct(collection string) string {
	if collection == "" {
		return "Row"
	}
	name := strings.ToUpper(collection[:1]) + collection[1:]
	return strings.TrimSuffix(name, "s") + "Row"
}
