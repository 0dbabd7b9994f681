// Package csgen emits C# source. The loops form is an explicit for loop
// inside a static class; the broadcast form is a LINQ operator chain; the
// parallel form partitions the index space and runs Parallel.For with an
// ordered merge of per-partition results. The unsafe flag wraps hot
// accumulation in an unchecked block.
package csgen

import (
	"fmt"
	"strings"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

const backendName = "cs"

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
		g.emitFile(dec, func() { g.emitLoops() })
	case strategy.Broadcast:
		g.emitFile(dec, func() { err = g.emitBroadcast() })
	case strategy.ParallelPartitioned:
		g.emitFile(dec, func() { err = g.emitParallel() })
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

	parallel bool
}

func (g *gen) clauses() []ir.Clause { return ir.Clauses(g.n) }

func (g *gen) emitFile(dec strategy.Decision, body func()) {
	for _, note := range dec.Notes {
		g.w.Linef("// %s", note)
	}
	g.parallel = dec.Strategy == strategy.ParallelPartitioned
	g.w.Linef("using System;")
	g.w.Linef("using System.Collections.Generic;")
	g.w.Linef("using System.Linq;")
	if g.parallel {
		g.w.Linef("using System.Threading.Tasks;")
	}
	g.w.Blank()

	for _, name := range g.p.typedCollections() {
		coll := g.p.schemaOf(name)
		var fields []string
		for _, field := range coll.FieldNames() {
			fields = append(fields, g.p.fieldType(coll.Fields[field])+" "+pascal(field))
		}
		g.w.Linef("public sealed record %s(%s);", rowRecord(name), strings.Join(fields, ", "))
		g.w.Blank()
	}

	g.w.Linef("public static class %s", pascal(g.req.FuncName))
	g.w.Block("{", "}", func() {
		g.w.Linef("public static %s Execute(%s)", g.returnType(), g.params())
		g.w.Block("{", "}", body)
	})
}

func (g *gen) params() string {
	var parts []string
	for _, cl := range g.clauses() {
		src, ok := cl.Source.(*ir.CollectionSource)
		if !ok {
			continue
		}
		if g.p.isTyped(cl.Var) {
			parts = append(parts, fmt.Sprintf("IReadOnlyList<%s> %s", rowRecord(src.Name), src.Name))
		} else {
			parts = append(parts, fmt.Sprintf("IReadOnlyList<Dictionary<string, %s>> %s", g.p.intType, src.Name))
		}
	}
	return strings.Join(parts, ", ")
}

func (g *gen) returnType() string {
	switch node := g.n.(type) {
	case *ir.ListComp:
		return "List<" + g.p.scalarType(node.Element) + ">"
	case *ir.SetComp:
		return "HashSet<" + g.p.scalarType(node.Element) + ">"
	case *ir.DictComp:
		return fmt.Sprintf("Dictionary<%s, %s>", g.p.scalarType(node.Key), g.p.scalarType(node.Value))
	case *ir.Reduction:
		if node.Op.ShortCircuit() {
			return "bool"
		}
		return g.p.intType
	default:
		return g.p.intType
	}
}

func (g *gen) emitLoops() {
	g.prologue()
	g.emitClauseLoop(0, g.body)
	g.epilogue()
}

func (g *gen) prologue() {
	it := g.p.intType
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("var result = new List<%s>();", g.p.scalarType(node.Element))
	case *ir.SetComp:
		g.w.Linef("var result = new HashSet<%s>();", g.p.scalarType(node.Element))
	case *ir.DictComp:
		g.w.Linef("var result = new Dictionary<%s, %s>();", g.p.scalarType(node.Key), g.p.scalarType(node.Value))
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("%s acc = 0;", it)
		case ir.ReduceProduct:
			g.w.Linef("%s acc = 1;", it)
		case ir.ReduceMax:
			g.w.Linef("%s acc = %s;", it, g.p.minSentinel())
		case ir.ReduceMin:
			g.w.Linef("%s acc = %s;", it, g.p.maxSentinel())
		}
	}
}

func (g *gen) epilogue() {
	switch node := g.n.(type) {
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceAny:
			g.w.Linef("return false;")
		case ir.ReduceAll:
			g.w.Linef("return true;")
		default:
			g.w.Linef("return acc;")
		}
	default:
		g.w.Linef("return result;")
	}
}

func (g *gen) body() {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("result.Add(%s);", g.p.expr(node.Element))
	case *ir.SetComp:
		g.w.Linef("result.Add(%s);", g.p.expr(node.Element))
	case *ir.DictComp:
		g.w.Linef("result[%s] = %s;", g.p.expr(node.Key), g.p.expr(node.Value))
	case *ir.Reduction:
		g.accumulate(node, "acc")
	}
}

// accumulate folds one element into the named accumulator. The unsafe
// flag turns off overflow checking on the wrapping operators.
func (g *gen) accumulate(node *ir.Reduction, acc string) {
	elem := g.p.expr(node.Inner.Element)
	switch node.Op {
	case ir.ReduceSum:
		g.unchecked(func() { g.w.Linef("%s += %s;", acc, elem) })
	case ir.ReduceProduct:
		g.unchecked(func() { g.w.Linef("%s *= %s;", acc, elem) })
	case ir.ReduceMax:
		g.w.Linef("%s = Math.Max(%s, %s);", acc, acc, elem)
	case ir.ReduceMin:
		g.w.Linef("%s = Math.Min(%s, %s);", acc, acc, elem)
	case ir.ReduceAny:
		g.w.Linef("if (%s)", elem)
		g.w.Block("{", "}", func() { g.w.Linef("return true;") })
	case ir.ReduceAll:
		g.w.Linef("if (!(%s))", elem)
		g.w.Block("{", "}", func() { g.w.Linef("return false;") })
	}
}

func (g *gen) unchecked(stmt func()) {
	if !g.req.Unsafe {
		stmt()
		return
	}
	g.w.Linef("unchecked")
	g.w.Block("{", "}", stmt)
}

func (g *gen) emitClauseLoop(idx int, innermost func()) {
	clauses := g.clauses()
	if idx == len(clauses) {
		innermost()
		return
	}
	cl := clauses[idx]

	inner := func() {
		for _, f := range cl.Filters {
			g.w.Linef("if (!(%s))", g.p.expr(f))
			g.w.Block("{", "}", func() { g.w.Linef("continue;") })
		}
		g.emitClauseLoop(idx+1, innermost)
	}

	switch src := cl.Source.(type) {
	case *ir.RangeSource:
		cmp := "<"
		if src.Step < 0 {
			cmp = ">"
		}
		g.w.Linef("for (%s %s = %d; %s %s %d; %s += %d)",
			g.p.intType, cl.Var, src.Start, cl.Var, cmp, src.Stop, cl.Var, src.Step)
		g.w.Block("{", "}", inner)
	case *ir.CollectionSource:
		g.w.Linef("foreach (var %s in %s)", cl.Var, src.Name)
		g.w.Block("{", "}", inner)
	}
}

// emitBroadcast writes the LINQ chain form.
func (g *gen) emitBroadcast() error {
	cl := g.clauses()[0]
	src, ok := cl.Source.(*ir.RangeSource)
	if !ok {
		return render.Errorf(backendName, strategy.Broadcast, "broadcast form needs a range source")
	}

	chain := []string{"return " + g.rangeChain(cl.Var, src)}
	for _, f := range cl.Filters {
		chain = append(chain, fmt.Sprintf(".Where(%s => %s)", cl.Var, g.p.expr(f)))
	}

	switch node := g.n.(type) {
	case *ir.ListComp:
		chain = append(chain,
			fmt.Sprintf(".Select(%s => %s)", cl.Var, g.p.expr(node.Element)),
			".ToList();")
	case *ir.SetComp:
		chain = append(chain,
			fmt.Sprintf(".Select(%s => %s)", cl.Var, g.p.expr(node.Element)),
			".ToHashSet();")
	case *ir.Reduction:
		elem := g.p.expr(node.Inner.Element)
		project := fmt.Sprintf(".Select(%s => %s)", cl.Var, elem)
		switch node.Op {
		case ir.ReduceSum:
			chain = append(chain, project, ".Sum();")
		case ir.ReduceProduct:
			chain = append(chain, project,
				fmt.Sprintf(".Aggregate(%s, (acc, v) => acc * v);", g.p.one()))
		case ir.ReduceMax:
			chain = append(chain, project,
				fmt.Sprintf(".Aggregate(%s, (acc, v) => Math.Max(acc, v));", g.p.minSentinel()))
		case ir.ReduceMin:
			chain = append(chain, project,
				fmt.Sprintf(".Aggregate(%s, (acc, v) => Math.Min(acc, v));", g.p.maxSentinel()))
		case ir.ReduceAny:
			chain = append(chain, fmt.Sprintf(".Any(%s => %s);", cl.Var, elem))
		case ir.ReduceAll:
			chain = append(chain, fmt.Sprintf(".All(%s => %s);", cl.Var, elem))
		}
	default:
		return render.Errorf(backendName, strategy.Broadcast, "broadcast form does not build dictionaries")
	}

	g.w.Linef("%s", chain[0])
	g.w.In()
	for _, link := range chain[1:] {
		g.w.Linef("%s", link)
	}
	g.w.Out()
	return nil
}

// rangeChain yields an IEnumerable over the half-open index space.
// Enumerable.Range is int-typed, so the 64-bit default projects to long.
func (g *gen) rangeChain(varName string, src *ir.RangeSource) string {
	n := src.Len()
	if src.Step == 1 {
		base := fmt.Sprintf("Enumerable.Range(%d, %d)", src.Start, n)
		if g.p.intType == "long" {
			return base + fmt.Sprintf(".Select(%s => (long)%s)", varName, varName)
		}
		return base
	}
	cast := ""
	if g.p.intType == "long" {
		cast = "(long)"
	}
	return fmt.Sprintf("Enumerable.Range(0, %d).Select(k => %s(%d + k * %d))", n, cast, src.Start, src.Step)
}

// emitParallel writes the partitioned form. The outer clause must be a
// range so the index space is known; collections fall back upstream.
func (g *gen) emitParallel() error {
	node, ok := g.n.(*ir.Reduction)
	if !ok {
		return render.Errorf(backendName, strategy.ParallelPartitioned, "parallel form covers reductions only")
	}
	clauses := g.clauses()
	src, ok := clauses[0].Source.(*ir.RangeSource)
	if !ok {
		return render.Errorf(backendName, strategy.ParallelPartitioned, "parallel form needs a range outer clause")
	}

	it := g.p.intType
	g.w.Linef("%s total = %d;", it, src.Len())
	g.w.Linef("int workers = Environment.ProcessorCount;")
	g.w.Linef("if ((%s)workers > total)", it)
	g.w.Block("{", "}", func() { g.w.Linef("workers = (int)total;") })
	g.w.Linef("if (workers < 1)")
	g.w.Block("{", "}", func() { g.w.Linef("workers = 1;") })
	g.w.Linef("%s chunk = (total + workers - 1) / workers;", it)
	g.w.Linef("var partials = new %s[workers];", it)
	g.w.Linef("Parallel.For(0, workers, w =>")
	g.w.Block("{", "});", func() {
		g.w.Linef("%s lo = w * chunk;", it)
		g.w.Linef("%s hi = Math.Min(lo + chunk, total);", it)
		g.w.Linef("%s acc = %s;", it, g.p.identity(node.Op))
		g.w.Linef("for (%s k = lo; k < hi; k += 1)", it)
		g.w.Block("{", "}", func() {
			g.w.Linef("%s %s = %d + k * %d;", it, clauses[0].Var, src.Start, src.Step)
			for _, f := range clauses[0].Filters {
				g.w.Linef("if (!(%s))", g.p.expr(f))
				g.w.Block("{", "}", func() { g.w.Linef("continue;") })
			}
			g.emitClauseLoop(1, func() { g.accumulate(node, "acc") })
		})
		g.w.Linef("partials[w] = acc;")
	})

	// Merge in partition index order.
	g.w.Linef("%s result = %s;", it, g.p.identity(node.Op))
	g.w.Linef("for (int w = 0; w < workers; w += 1)")
	g.w.Block("{", "}", func() {
		switch node.Op {
		case ir.ReduceSum:
			g.unchecked(func() { g.w.Linef("result += partials[w];") })
		case ir.ReduceProduct:
			g.unchecked(func() { g.w.Linef("result *= partials[w];") })
		case ir.ReduceMax:
			g.w.Linef("result = Math.Max(result, partials[w]);")
		case ir.ReduceMin:
			g.w.Linef("result = Math.Min(result, partials[w]);")
		}
	})
	g.w.Linef("return result;")
	return nil
}

func pascal(name string) string {
	if name == "" {
		return "Compute"
	}
	var b strings.Builder
	up := true
	for _, r := range name {
		if r == '_' || r == '-' {
			up = true
			continue
		}
		if up {
			b.WriteString(strings.ToUpper(string(r)))
			up = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func rowRecord(collection string) string {
	if collection == "" {
		return "Row"
	}
	return strings.TrimSuffix(pascal(collection), "s") + "Row"
}
