// Package tsgen emits TypeScript source. The loops form is an explicit
// for loop; the broadcast form is the functional
// Array.from(...).filter(...).map(...).reduce(...) chain. There is no
// parallel capability: without shared-memory threads the partitioned
// form has nothing honest to fan out over, so parallel requests
// downgrade at selection time.
package tsgen

import (
	"fmt"
	"strings"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

const backendName = "ts"

type backend struct{}

func init() { render.Register(backend{}) }

func (backend) Name() string { return backendName }

func (backend) Capabilities() strategy.Capabilities {
	return strategy.Capabilities{Broadcast: true}
}

func (backend) Render(n ir.Node, info *typeinfo.Info, dec strategy.Decision, req render.Request) (*render.Artifact, error) {
	g := &gen{
		w:    render.NewWriter("  "),
		n:    n,
		info: info,
		req:  req,
		p:    newPrinter(n, info),
	}

	art := &render.Artifact{}
	if req.Unsafe {
		art.Warnings = append(art.Warnings, "ts: no bounds-check hints to emit; unsafe flag ignored")
	}
	if req.IntWidth == 32 {
		art.Warnings = append(art.Warnings, "ts: every numeric type is number; int width ignored")
	}

	switch dec.Strategy {
	case strategy.Loops:
		g.emitLoops(dec)
	case strategy.Broadcast:
		if err := g.emitBroadcast(dec); err != nil {
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

func (g *gen) header(dec strategy.Decision) {
	for _, note := range dec.Notes {
		g.w.Linef("// %s", note)
	}
	g.emitInterfaces()
	g.w.Linef("export function %s(%s): %s {", g.req.FuncName, g.params(), g.returnType())
	g.w.In()
}

func (g *gen) footer() {
	g.w.Out()
	g.w.Linef("}")
}

func (g *gen) emitInterfaces() {
	for _, name := range g.p.typedCollections() {
		coll := g.p.schemaOf(name)
		g.w.Block(fmt.Sprintf("interface %s {", rowInterface(name)), "}", func() {
			for _, field := range coll.FieldNames() {
				g.w.Linef("%s: %s;", field, g.p.fieldType(coll.Fields[field]))
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
			parts = append(parts, fmt.Sprintf("%s: %s[]", src.Name, rowInterface(src.Name)))
		} else {
			parts = append(parts, fmt.Sprintf("%s: Record<string, number>[]", src.Name))
		}
	}
	return strings.Join(parts, ", ")
}

func (g *gen) returnType() string {
	switch node := g.n.(type) {
	case *ir.ListComp:
		return g.p.arrayType(node.Element)
	case *ir.SetComp:
		return "Set<" + g.p.scalarType(node.Element) + ">"
	case *ir.DictComp:
		return fmt.Sprintf("Map<%s, %s>", g.p.scalarType(node.Key), g.p.scalarType(node.Value))
	case *ir.Reduction:
		if node.Op.ShortCircuit() {
			return "boolean"
		}
		return "number"
	default:
		return "number"
	}
}

func (g *gen) emitLoops(dec strategy.Decision) {
	g.header(dec)
	g.prologue()
	g.emitClauseLoop(0, g.body)
	g.epilogue()
	g.footer()
}

func (g *gen) prologue() {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("const out: %s = [];", g.p.arrayType(node.Element))
	case *ir.SetComp:
		g.w.Linef("const out = new Set<%s>();", g.p.scalarType(node.Element))
	case *ir.DictComp:
		g.w.Linef("const out = new Map<%s, %s>();", g.p.scalarType(node.Key), g.p.scalarType(node.Value))
	case *ir.Reduction:
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("let acc = 0;")
		case ir.ReduceProduct:
			g.w.Linef("let acc = 1;")
		case ir.ReduceMax:
			g.w.Linef("let acc = Number.MIN_SAFE_INTEGER;")
		case ir.ReduceMin:
			g.w.Linef("let acc = Number.MAX_SAFE_INTEGER;")
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
		g.w.Linef("return out;")
	}
}

func (g *gen) body() {
	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("out.push(%s);", g.p.expr(node.Element))
	case *ir.SetComp:
		g.w.Linef("out.add(%s);", g.p.expr(node.Element))
	case *ir.DictComp:
		g.w.Linef("out.set(%s, %s);", g.p.expr(node.Key), g.p.expr(node.Value))
	case *ir.Reduction:
		elem := g.p.expr(node.Inner.Element)
		switch node.Op {
		case ir.ReduceSum:
			g.w.Linef("acc += %s;", elem)
		case ir.ReduceProduct:
			g.w.Linef("acc *= %s;", elem)
		case ir.ReduceMax:
			g.w.Linef("acc = Math.max(acc, %s);", elem)
		case ir.ReduceMin:
			g.w.Linef("acc = Math.min(acc, %s);", elem)
		case ir.ReduceAny:
			g.w.Block(fmt.Sprintf("if (%s) {", elem), "}", func() {
				g.w.Linef("return true;")
			})
		case ir.ReduceAll:
			g.w.Block(fmt.Sprintf("if (!(%s)) {", elem), "}", func() {
				g.w.Linef("return false;")
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
		for _, f := range cl.Filters {
			g.w.Block(fmt.Sprintf("if (!(%s)) {", g.p.expr(f)), "}", func() {
				g.w.Linef("continue;")
			})
		}
		g.emitClauseLoop(idx+1, innermost)
	}

	switch src := cl.Source.(type) {
	case *ir.RangeSource:
		cmp := "<"
		if src.Step < 0 {
			cmp = ">"
		}
		g.w.Block(fmt.Sprintf("for (let %s = %d; %s %s %d; %s += %d) {",
			cl.Var, src.Start, cl.Var, cmp, src.Stop, cl.Var, src.Step), "}", inner)
	case *ir.CollectionSource:
		g.w.Block(fmt.Sprintf("for (const %s of %s) {", cl.Var, src.Name), "}", inner)
	}
}

// emitBroadcast writes the functional chain form. Selection guarantees
// a single range clause and arithmetic/comparison-only expressions.
func (g *gen) emitBroadcast(dec strategy.Decision) error {
	cl := g.clauses()[0]
	src, ok := cl.Source.(*ir.RangeSource)
	if !ok {
		return render.Errorf(backendName, strategy.Broadcast, "broadcast form needs a range source")
	}

	g.header(dec)

	chain := []string{fmt.Sprintf("return %s", arrayFrom(src))}
	for _, f := range cl.Filters {
		chain = append(chain, fmt.Sprintf(".filter((%s) => %s)", cl.Var, g.p.expr(f)))
	}

	switch node := g.n.(type) {
	case *ir.ListComp:
		chain = append(chain, fmt.Sprintf(".map((%s) => %s);", cl.Var, g.p.expr(node.Element)))
	case *ir.SetComp:
		chain[0] = strings.Replace(chain[0], "return ", "const values = ", 1)
		chain = append(chain, fmt.Sprintf(".map((%s) => %s);", cl.Var, g.p.expr(node.Element)))
	case *ir.Reduction:
		elem := g.p.expr(node.Inner.Element)
		switch node.Op {
		case ir.ReduceSum:
			chain = append(chain,
				fmt.Sprintf(".map((%s) => %s)", cl.Var, elem),
				".reduce((acc, v) => acc + v, 0);")
		case ir.ReduceProduct:
			chain = append(chain,
				fmt.Sprintf(".map((%s) => %s)", cl.Var, elem),
				".reduce((acc, v) => acc * v, 1);")
		case ir.ReduceMax:
			chain = append(chain,
				fmt.Sprintf(".map((%s) => %s)", cl.Var, elem),
				".reduce((acc, v) => Math.max(acc, v), Number.MIN_SAFE_INTEGER);")
		case ir.ReduceMin:
			chain = append(chain,
				fmt.Sprintf(".map((%s) => %s)", cl.Var, elem),
				".reduce((acc, v) => Math.min(acc, v), Number.MAX_SAFE_INTEGER);")
		case ir.ReduceAny:
			chain = append(chain, fmt.Sprintf(".some((%s) => %s);", cl.Var, elem))
		case ir.ReduceAll:
			chain = append(chain, fmt.Sprintf(".every((%s) => %s);", cl.Var, elem))
		}
	default:
		return render.Errorf(backendName, strategy.Broadcast, "broadcast form does not build maps")
	}

	g.w.Linef("%s", chain[0])
	g.w.In()
	for _, link := range chain[1:] {
		g.w.Linef("%s", link)
	}
	g.w.Out()
	if _, isSet := g.n.(*ir.SetComp); isSet {
		g.w.Linef("return new Set(values);")
	}
	g.footer()
	return nil
}

func arrayFrom(src *ir.RangeSource) string {
	n := src.Len()
	switch {
	case src.Start == 0 && src.Step == 1:
		return fmt.Sprintf("Array.from({ length: %d }, (_, k) => k)", n)
	case src.Step == 1:
		return fmt.Sprintf("Array.from({ length: %d }, (_, k) => %d + k)", n, src.Start)
	default:
		return fmt.Sprintf("Array.from({ length: %d }, (_, k) => %d + k * %d)", n, src.Start, src.Step)
	}
}

func rowInterface(collection string) string {
	if collection == "" {
		return "Row"
	}
	name := strings.ToUpper(collection[:1]) + collection[1:]
	return strings.TrimSuffix(name, "s") + "Row"
}
