// Package gogen emits Go source. The partitioned-parallel form fans
// out over goroutines with one partial slot per worker and merges in
// partition-index order, so the result never depends on completion
// order. Container comprehensions parallelize through per-worker
// shards merged the same way, which preserves sequential overwrite
// semantics for colliding dict keys.
package gogen

import (
	"fmt"
	"strings"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

const backendName = "go"

type backend struct{}

func init() { render.Register(backend{}) }

func (backend) Name() string { return backendName }

func (backend) Capabilities() strategy.Capabilities {
	return strategy.Capabilities{
		Broadcast: false,
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
		w:    render.NewWriter("\t"),
		n:    n,
		info: info,
		req:  req,
		p:    newPrinter(n, info, req.IntWidth),
	}

	art := &render.Artifact{}
	if req.Unsafe {
		art.Warnings = append(art.Warnings, "go: no bounds-check hints to emit; unsafe flag ignored")
	}

	switch dec.Strategy {
	case strategy.Loops:
		g.emitLoops(dec)
	case strategy.ParallelPartitioned:
		if err := g.emitParallel(dec); err != nil {
			return nil, err
		}
	default:
		return nil, render.Errorf(backendName, dec.Strategy, "no %s form", dec.Strategy)
	}

	art.Code = g.w.String()
	return art, nil
}

type gen struct {
	w    *render.Writer
	n    ir.Node
	info *typeinfo.Info
	req  render.Request
	p    *printer
}

func (g *gen) clauses() []ir.Clause { return ir.Clauses(g.n) }

func (g *gen) header(dec strategy.Decision, parallel bool) {
	for _, note := range dec.Notes {
		g.w.Linef("// %s", note)
	}

	var imports []string
	if g.usesMathSentinel() {
		imports = append(imports, `"math"`)
	}
	if parallel {
		imports = append(imports, `"runtime"`, `"sync"`)
	}
	if len(imports) == 1 {
		g.w.Linef("import %s", imports[0])
		g.w.Blank()
	} else if len(imports) > 1 {
		g.w.Block("import (", ")", func() {
			for _, imp := range imports {
				g.w.Linef("%s", imp)
			}
		})
		g.w.Blank()
	}

	g.emitStructs()
	g.w.Linef("func %s(%s) %s {", g.req.FuncName, g.params(), g.returnType())
	g.w.In()
}

func (g *gen) footer() {
	g.w.Out()
	g.w.Linef("}")
}

func (g *gen) usesMathSentinel() bool {
	red, ok := g.n.(*ir.Reduction)
	return ok && (red.Op == ir.ReduceMax || red.Op == ir.ReduceMin)
}

func (g *gen) emitStructs() {
	for _, name := range g.p.typedCollections() {
		coll := g.p.schemaOf(name)
		g.w.Block(fmt.Sprintf("type %s struct {", rowStruct(name)), "}", func() {
			for _, field := range coll.FieldNames() {
				g.w.Linef("%s %s", exportField(field), g.p.fieldType(coll.Fields[field]))
			}
		})
		g.w.Blank()
	}
}

func (g *gen) params() string {
	var parts []string
	for _, cl := range g.clauses() {
		src, ok := cl.Source.(*ir.CollectionSource)
		if !ok {
			continue
		}
		if g.p.isTyped(cl.Var) {
			parts = append(parts, fmt.Sprintf("%s []%s", src.Name, rowStruct(src.Name)))
		} else {
			parts = append(parts, fmt.Sprintf("%s []map[string]%s", src.Name, g.p.intType))
		}
	}
	return strings.Join(parts, ", ")
}

func (g *gen) returnType() string {
	if g.info != nil && g.info.Result.Kind != typeinfo.KindUnknown {
		return g.p.typeOf(g.info.Result)
	}
	t := g.p.intType
	switch node := g.n.(type) {
	case *ir.ListComp:
		return "[]" + t
	case *ir.SetComp:
		return "map[" + t + "]struct{}"
	case *ir.DictComp:
		return fmt.Sprintf("map[%s]%s", t, t)
	case *ir.Reduction:
		if node.Op.ShortCircuit() {
			return "bool"
		}
		return t
	default:
		return t
	}
}

func (g *gen) emitLoops(dec strategy.Decision) {
	g.header(dec, false)
	g.prologue("out", "acc")
	g.emitClauseLoop(0, func() { g.body("out", "acc") })
	g.epilogue()
	g.footer()
}

func (g *gen) prologue(outVar, accVar string) {
	t := g.p.intType
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("%s := make([]%s, 0)", outVar, t)
	case *ir.SetComp:
		g.w.Linef("%s := make(map[%s]struct{})", outVar, t)
	case *ir.DictComp:
		g.w.Linef("%s := make(map[%s]%s)", outVar, t, t)
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("%s := %s(0)", accVar, t)
		case ir.ReduceProduct:
			g.w.Linef("%s := %s(1)", accVar, t)
		case ir.ReduceMax:
			g.w.Linef("%s := %s(%s)", accVar, t, g.p.minSentinel())
		case ir.ReduceMin:
			g.w.Linef("%s := %s(%s)", accVar, t, g.p.maxSentinel())
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

func (g *gen) body(outVar, accVar string) {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("%s = append(%s, %s)", outVar, outVar, g.p.expr(node.Element))
	case *ir.SetComp:
		g.w.Linef("%s[%s] = struct{}{}", outVar, g.p.expr(node.Element))
	case *ir.DictComp:
		g.w.Linef("%s[%s] = %s", outVar, g.p.expr(node.Key), g.p.expr(node.Value))
	case *ir.Reduction:
		elem := g.p.expr(node.Inner.Element)
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("%s += %s", accVar, elem)
		case ir.ReduceProduct:
			g.w.Linef("%s *= %s", accVar, elem)
		case ir.ReduceMax:
			g.w.Block(fmt.Sprintf("if v := %s; v > %s {", elem, accVar), "}", func() {
				g.w.Linef("%s = v", accVar)
			})
		case ir.ReduceMin:
			g.w.Block(fmt.Sprintf("if v := %s; v < %s {", elem, accVar), "}", func() {
				g.w.Linef("%s = v", accVar)
			})
		case ir.ReduceAny:
			g.w.Block(fmt.Sprintf("if %s {", elem), "}", func() {
				g.w.Linef("return true")
			})
		case ir.ReduceAll:
			g.w.Block(fmt.Sprintf("if !(%s) {", elem), "}", func() {
				g.w.Linef("return false")
			})
		}
	}
}

func (g *gen) emitClauseLoop(idx int, innermost func()) {
	clauses := g.clauses()
	if idx == len(clauses) {
		innermost()
		return
	}
	cl := clauses[idx]

	inner := func() {
		g.emitFilters(cl)
		g.emitClauseLoop(idx+1, innermost)
	}

	switch src := cl.Source.(type) {
	case *ir.RangeSource:
		g.w.Block(g.rangeHeader(cl.Var, src), "}", inner)
	case *ir.CollectionSource:
		g.w.Block(fmt.Sprintf("for _, %s := range %s {", cl.Var, src.Name), "}", inner)
	}
}

func (g *gen) rangeHeader(v string, src *ir.RangeSource) string {
	t := g.p.intType
	cmp, stepStmt := "<", fmt.Sprintf("%s++", v)
	if src.Step < 0 {
		cmp = ">"
		stepStmt = fmt.Sprintf("%s -= %d", v, -src.Step)
	} else if src.Step != 1 {
		stepStmt = fmt.Sprintf("%s += %d", v, src.Step)
	}
	return fmt.Sprintf("for %s := %s(%d); %s %s %d; %s {", v, t, src.Start, v, cmp, src.Stop, stepStmt)
}

func (g *gen) emitFilters(cl ir.Clause) {
	for _, f := range cl.Filters {
		g.w.Block(fmt.Sprintf("if !(%s) {", g.p.expr(f)), "}", func() {
			g.w.Linef("continue")
		})
	}
}

// emitParallel writes the fan-out/fan-in form: contiguous index-space
// partitions, per-worker partials or shards, merge in partition-index
// order after the WaitGroup barrier.
func (g *gen) emitParallel(dec strategy.Decision) error {
	outer, ok := g.clauses()[0].Source.(*ir.RangeSource)
	if !ok {
		return render.Errorf(backendName, strategy.ParallelPartitioned, "parallel form needs a range outer clause")
	}
	cl0 := g.clauses()[0]
	t := g.p.intType

	g.header(dec, true)
	g.w.Linef("total := %s(%d)", t, outer.Len())
	g.w.Linef("workers := %s(runtime.NumCPU())", t)
	g.w.Block("if workers > total {", "}", func() { g.w.Linef("workers = total") })
	g.w.Block("if workers < 1 {", "}", func() { g.w.Linef("workers = 1") })
	g.w.Linef("chunk := (total + workers - 1) / workers")

	red, isReduction := g.n.(*ir.Reduction)
	if isReduction {
		g.w.Linef("partials := make([]%s, workers)", t)
	} else {
		g.w.Linef("shards := make([]%s, workers)", g.shardType())
	}
	g.w.Linef("var wg sync.WaitGroup")
	g.w.Block(fmt.Sprintf("for w := %s(0); w < workers; w++ {", t), "}", func() {
		g.w.Linef("wg.Add(1)")
		g.w.Block(fmt.Sprintf("go func(w %s) {", t), "}(w)", func() {
			g.w.Linef("defer wg.Done()")
			g.w.Linef("lo := w * chunk")
			g.w.Linef("hi := lo + chunk")
			g.w.Block("if hi > total {", "}", func() { g.w.Linef("hi = total") })
			if isReduction {
				g.parallelReductionWorker(red, cl0, outer)
			} else {
				g.parallelShardWorker(cl0, outer)
			}
		})
	})
	g.w.Linef("wg.Wait()")
	if isReduction {
		g.parallelReductionMerge(red)
	} else {
		g.parallelShardMerge()
	}
	g.footer()
	return nil
}

func (g *gen) workerLoop(cl0 ir.Clause, outer *ir.RangeSource, body func()) {
	g.w.Block("for k := lo; k < hi; k++ {", "}", func() {
		g.w.Linef("%s := %s(%d) + k*%s(%d)", cl0.Var, g.p.intType, outer.Start, g.p.intType, outer.Step)
		g.emitFilters(cl0)
		g.emitClauseLoop(1, body)
	})
}

func (g *gen) parallelReductionWorker(red *ir.Reduction, cl0 ir.Clause, outer *ir.RangeSource) {
	t := g.p.intType
	switch red.Op {
	case ir.ReduceProduct:
		g.w.Linef("acc := %s(1)", t)
	case ir.ReduceMax:
		g.w.Linef("acc := %s(%s)", t, g.p.minSentinel())
	case ir.ReduceMin:
		g.w.Linef("acc := %s(%s)", t, g.p.maxSentinel())
	default:
		g.w.Linef("acc := %s(0)", t)
	}
	g.workerLoop(cl0, outer, func() { g.body("", "acc") })
	g.w.Linef("partials[w] = acc")
}

func (g *gen) parallelReductionMerge(red *ir.Reduction) {
	t := g.p.intType
	switch red.Op {
	case ir.ReduceProduct:
		g.w.Linef("result := %s(1)", t)
	case ir.ReduceMax:
		g.w.Linef("result := %s(%s)", t, g.p.minSentinel())
	case ir.ReduceMin:
		g.w.Linef("result := %s(%s)", t, g.p.maxSentinel())
	default:
		g.w.Linef("result := %s(0)", t)
	}
	g.w.Block("for _, partial := range partials {", "}", func() {
		switch red.Op {
		case ir.ReduceSum:
			g.w.Linef("result += partial")
		case ir.ReduceProduct:
			g.w.Linef("result *= partial")
		case ir.ReduceMax:
			g.w.Block("if partial > result {", "}", func() { g.w.Linef("result = partial") })
		case ir.ReduceMin:
			g.w.Block("if partial < result {", "}", func() { g.w.Linef("result = partial") })
		}
	})
	g.w.Linef("return result")
}

func (g *gen) shardType() string {
	t := g.p.intType
	switch g.n.(type) {
	case *ir.SetComp:
		return "map[" + t + "]struct{}"
	case *ir.DictComp:
		return fmt.Sprintf("map[%s]%s", t, t)
	default:
		return "[]" + t
	}
}

func (g *gen) parallelShardWorker(cl0 ir.Clause, outer *ir.RangeSource) {
	t := g.p.intType
	switch g.n.(type) {
	case *ir.SetComp:
		g.w.Linef("shard := make(map[%s]struct{})", t)
	case *ir.DictComp:
		g.w.Linef("shard := make(map[%s]%s)", t, t)
	default:
		g.w.Linef("shard := make([]%s, 0)", t)
	}
	g.workerLoop(cl0, outer, func() {
		switch node := g.n.(type) {
		case *ir.ListComp:
			g.w.Linef("shard = append(shard, %s)", g.p.expr(node.Element))
		case *ir.SetComp:
			g.w.Linef("shard[%s] = struct{}{}", g.p.expr(node.Element))
		case *ir.DictComp:
			g.w.Linef("shard[%s] = %s", g.p.expr(node.Key), g.p.expr(node.Value))
		}
	})
	g.w.Linef("shards[w] = shard")
}

// parallelShardMerge folds shards in partition-index order. A colliding
// dict key resolves to the highest-partition assignment, matching what
// sequential left-to-right overwrite would produce.
func (g *gen) parallelShardMerge() {
	t := g.p.intType
	switch g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("out := make([]%s, 0)", t)
		g.w.Block("for _, shard := range shards {", "}", func() {
			g.w.Linef("out = append(out, shard...)")
		})
	case *ir.SetComp:
		g.w.Linef("out := make(map[%s]struct{})", t)
		g.w.Block("for _, shard := range shards {", "}", func() {
			g.w.Block("for v := range shard {", "}", func() {
				g.w.Linef("out[v] = struct{}{}")
			})
		})
	case *ir.DictComp:
		g.w.Linef("out := make(map[%s]%s)", t, t)
		g.w.Block("for _, shard := range shards {", "}", func() {
			g.w.Block("for k, v := range shard {", "}", func() {
				g.w.Linef("out[k] = v")
			})
		})
	}
	g.w.Linef("return out")
}

func rowStruct(collection string) string {
	if collection == "" {
		return "Row"
	}
	name := strings.ToUpper(collection[:1]) + collection[1:]
	return strings.TrimSuffix(name, "s") + "Row"
}

func exportField(field string) string {
	if field == "" {
		return field
	}
	return strings.ToUpper(field[:1]) + field[1:]
}
