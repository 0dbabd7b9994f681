// Package rustgen emits Rust source. Loop and partitioned-parallel
// forms only; the parallel form fans out over std::thread::scope with
// one partial per worker, merged in partition-index order.
package rustgen

import (
	"fmt"
	"strings"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

const backendName = "rust"

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
		ParallelContainers: false,
	}
}

func (backend) Render(n ir.Node, info *typeinfo.Info, dec strategy.Decision, req render.Request) (*render.Artifact, error) {
	g := &gen{
		w:    render.NewWriter("    "),
		n:    n,
		info: info,
		req:  req,
		p:    newPrinter(n, info, req.IntWidth),
	}

	art := &render.Artifact{}
	if req.Unsafe {
		art.Warnings = append(art.Warnings, "rust: unsafe hints are not emitted; flag ignored")
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
	switch g.n.(type) {
	case *ir.SetComp:
		imports = append(imports, "use std::collections::HashSet;")
	case *ir.DictComp:
		imports = append(imports, "use std::collections::HashMap;")
	}
	if g.p.hasDynamicCollection() && !contains(imports, "use std::collections::HashMap;") {
		imports = append(imports, "use std::collections::HashMap;")
	}
	if parallel {
		imports = append(imports, "use std::thread;")
	}
	if len(imports) > 0 {
		for _, imp := range imports {
			g.w.Linef("%s", imp)
		}
	}
	g.w.Blank()

	g.emitStructs()
	g.w.Linef("pub fn %s(%s) -> %s {", g.req.FuncName, g.params(), g.returnType())
	g.w.In()
}

func (g *gen) footer() {
	g.w.Out()
	g.w.Linef("}")
}

// emitStructs declares one row struct per schema-typed collection.
func (g *gen) emitStructs() {
	names := g.p.typedCollections()
	for _, name := range names {
		coll := g.p.schemaOf(name)
		g.w.Block(fmt.Sprintf("pub struct %s {", rowStruct(name)), "}", func() {
			for _, field := range coll.FieldNames() {
				g.w.Linef("pub %s: %s,", field, g.p.fieldType(coll.Fields[field]))
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
			parts = append(parts, fmt.Sprintf("%s: &[%s]", src.Name, rowStruct(src.Name)))
		} else {
			parts = append(parts, fmt.Sprintf("%s: &[HashMap<String, %s>]", src.Name, g.p.intType))
		}
	}
	return strings.Join(parts, ", ")
}

func (g *gen) returnType() string {
	if g.info != nil && g.info.Result.Kind != typeinfo.KindUnknown {
		return g.p.typeOf(g.info.Result)
	}
	switch node := g.n.(type) {
	case *ir.ListComp:
		return "Vec<" + g.p.intType + ">"
	case *ir.SetComp:
		return "HashSet<" + g.p.intType + ">"
	case *ir.DictComp:
		return fmt.Sprintf("HashMap<%s, %s>", g.p.intType, g.p.intType)
	case *ir.Reduction:
		if node.Op.ShortCircuit() {
			return "bool"
		}
		return g.p.intType
	default:
		return g.p.intType
	}
}

func (g *gen) emitLoops(dec strategy.Decision) {
	g.header(dec, false)
	g.prologue()
	g.emitClauseLoop(0, g.body)
	g.epilogue()
	g.footer()
}

// prologue declares the accumulator or output container.
func (g *gen) prologue() {
	t := g.p.elemType()
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("let mut out: Vec<%s> = Vec::new();", t)
	case *ir.SetComp:
		g.w.Linef("let mut out: HashSet<%s> = HashSet::new();", t)
	case *ir.DictComp:
		g.w.Linef("let mut out: HashMap<%s, %s> = HashMap::new();", g.p.keyType(), g.p.valueType())
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("let mut acc: %s = 0;", t)
		case ir.ReduceProduct:
			g.w.Linef("let mut acc: %s = 1;", t)
		case ir.ReduceMax:
			g.w.Linef("let mut acc: %s = %s::MIN;", t, t)
		case ir.ReduceMin:
			g.w.Linef("let mut acc: %s = %s::MAX;", t, t)
		}
	}
}

func (g *gen) epilogue() {
	switch node := g.n.(type) {
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceAny:
			g.w.Linef("false")
		case ir.ReduceAll:
			g.w.Linef("true")
		default:
			g.w.Linef("acc")
		}
	default:
		g.w.Linef("out")
	}
}

func (g *gen) body() {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("out.push(%s);", g.p.expr(node.Element))
	case *ir.SetComp:
		g.w.Linef("out.insert(%s);", g.p.expr(node.Element))
	case *ir.DictComp:
		g.w.Linef("out.insert(%s, %s);", g.p.expr(node.Key), g.p.expr(node.Value))
	case *ir.Reduction:
		elem := g.p.expr(node.Inner.Element)
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("acc += %s;", elem)
		case ir.ReduceProduct:
			g.w.Linef("acc *= %s;", elem)
		case ir.ReduceMax:
			g.w.Linef("acc = acc.max(%s);", elem)
		case ir.ReduceMin:
			g.w.Linef("acc = acc.min(%s);", elem)
		case ir.ReduceAny:
			g.w.Linef("if %s {", elem)
			g.w.In()
			g.w.Linef("return true;")
			g.w.Out()
			g.w.Linef("}")
		case ir.ReduceAll:
			g.w.Linef("if !(%s) {", elem)
			g.w.In()
			g.w.Linef("return false;")
			g.w.Out()
			g.w.Linef("}")
		}
	}
}

// emitClauseLoop writes nested loops from clause idx inward, filters as
// guarded continues, then the innermost body.
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
		if src.Step == 1 {
			g.w.Block(fmt.Sprintf("for %s in %d..%d {", cl.Var, src.Start, src.Stop), "}", inner)
		} else {
			// Index form keeps continue safe for any step sign.
			k := fmt.Sprintf("k%d", idx)
			g.w.Block(fmt.Sprintf("for %s in 0..%d {", k, src.Len()), "}", func() {
				g.w.Linef("let %s = %d + %s * %d;", cl.Var, src.Start, k, src.Step)
				inner()
			})
		}
	case *ir.CollectionSource:
		g.w.Block(fmt.Sprintf("for %s in %s.iter() {", cl.Var, src.Name), "}", inner)
	}
}

func (g *gen) emitFilters(cl ir.Clause) {
	for _, f := range cl.Filters {
		g.w.Block(fmt.Sprintf("if !(%s) {", g.p.expr(f)), "}", func() {
			g.w.Linef("continue;")
		})
	}
}

// emitParallel writes the fan-out/fan-in scalar reduction. The outer
// clause must be a range; the domain is partitioned over its index
// space and partials merge strictly in partition order.
func (g *gen) emitParallel(dec strategy.Decision) error {
	red, ok := g.n.(*ir.Reduction)
	if !ok {
		return render.Errorf(backendName, strategy.ParallelPartitioned, "parallel form is reductions only")
	}
	outer, ok := g.clauses()[0].Source.(*ir.RangeSource)
	if !ok {
		return render.Errorf(backendName, strategy.ParallelPartitioned, "parallel form needs a range outer clause")
	}

	t := g.p.elemType()
	identity := identityFor(red.Op, t)
	cl0 := g.clauses()[0]

	g.header(dec, true)
	g.w.Linef("let total: i64 = %d;", outer.Len())
	g.w.Linef("let workers = thread::available_parallelism().map_or(1, |n| n.get()) as i64;")
	g.w.Linef("let workers = workers.min(total).max(1);")
	g.w.Linef("let chunk = (total + workers - 1) / workers;")
	g.w.Linef("let mut partials: Vec<%s> = vec![%s; workers as usize];", t, identity)
	g.w.Block("thread::scope(|scope| {", "});", func() {
		g.w.Block("for (w, slot) in partials.iter_mut().enumerate() {", "}", func() {
			g.w.Block("scope.spawn(move || {", "});", func() {
				g.w.Linef("let lo = w as i64 * chunk;")
				g.w.Linef("let hi = (lo + chunk).min(total);")
				g.w.Linef("let mut acc: %s = %s;", t, identity)
				g.w.Block("for k in lo..hi {", "}", func() {
					// k is i64; bind the clause variable in the element type.
					g.w.Linef("let %s = (%d + k * %d) as %s;", cl0.Var, outer.Start, outer.Step, t)
					g.emitFilters(cl0)
					g.emitClauseLoop(1, func() {
						elem := g.p.expr(red.Inner.Element)
						switch red.Op {
						case ir.ReduceSum:
							g.w.Linef("acc += %s;", elem)
						case ir.ReduceProduct:
							g.w.Linef("acc *= %s;", elem)
						case ir.ReduceMax:
							g.w.Linef("acc = acc.max(%s);", elem)
						case ir.ReduceMin:
							g.w.Linef("acc = acc.min(%s);", elem)
						}
					})
				})
				g.w.Linef("*slot = acc;")
			})
		})
	})
	g.w.Linef("let mut result: %s = %s;", t, identity)
	g.w.Block("for partial in partials {", "}", func() {
		switch red.Op {
		case ir.ReduceSum:
			g.w.Linef("result += partial;")
		case ir.ReduceProduct:
			g.w.Linef("result *= partial;")
		case ir.ReduceMax:
			g.w.Linef("result = result.max(partial);")
		case ir.ReduceMin:
			g.w.Linef("result = result.min(partial);")
		}
	})
	g.w.Linef("result")
	g.footer()
	return nil
}

func identityFor(op ir.ReduceOp, t string) string {
	switch op {
	case ir.ReduceProduct:
		return "1"
	case ir.ReduceMax:
		return t + "::MIN"
	case ir.ReduceMin:
		return t + "::MAX"
	default:
		return "0"
	}
}

func rowStruct(collection string) string {
	if collection == "" {
		return "Row"
	}
	name := strings.ToUpper(collection[:1]) + collection[1:]
	return strings.TrimSuffix(name, "s") + "Row"
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
