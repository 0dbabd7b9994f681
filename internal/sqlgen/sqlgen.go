// Package sqlgen emits a single SQL query per expression. Ranges become
// recursive CTEs (sqlite) or generate_series calls (postgres), extra
// clauses become joins, and filters are pushed down to the innermost
// join level whose variables they reference. A parallel request is a
// no-op delegated to the query engine.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

const backendName = "sql"

type backend struct{}

func init() { render.Register(backend{}) }

func (backend) Name() string { return backendName }

// Capabilities accepts parallel requests so the selector does not
// degrade them; execution parallelism belongs to the query planner.
func (backend) Capabilities() strategy.Capabilities {
	return strategy.Capabilities{
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
	if node, ok := n.(*ir.Reduction); ok && node.Op == ir.ReduceProduct {
		return nil, render.Errorf(backendName, dec.Strategy, "product has no portable aggregate")
	}

	dialect, err := render.ParseDialect(string(req.Dialect))
	if err != nil {
		return nil, render.Errorf(backendName, dec.Strategy, "%v", err)
	}

	g := &gen{
		w:       render.NewWriter("    "),
		n:       n,
		dialect: dialect,
		p:       &printer{},
	}

	art := &render.Artifact{}
	if req.Unsafe {
		art.Warnings = append(art.Warnings, "sql: no unsafe form; flag ignored")
	}
	if dec.Strategy == strategy.ParallelPartitioned {
		art.Notes = append(art.Notes, "parallel request delegated to the query engine")
	}
	if _, ok := n.(*ir.DictComp); ok {
		art.Notes = append(art.Notes, "duplicate keys resolve in the consuming engine; rows carry no insertion order")
	}

	for _, note := range dec.Notes {
		g.w.Linef("-- %s", note)
	}
	g.emitQuery()
	art.Code = g.w.String()
	return art, nil
}

type gen struct {
	w       *render.Writer
	n       ir.Node
	dialect render.Dialect
	p       *printer
}

func (g *gen) clauses() []ir.Clause { return ir.Clauses(g.n) }

func (g *gen) emitQuery() {
	if g.dialect == render.DialectSQLite {
		g.emitCTEs()
	}

	switch node := g.n.(type) {
	case *ir.ListComp:
		g.w.Linef("SELECT %s AS value", g.p.expr(node.Element))
		g.emitFromWhere(nil)
	case *ir.SetComp:
		g.w.Linef("SELECT DISTINCT %s AS value", g.p.expr(node.Element))
		g.emitFromWhere(nil)
	case *ir.DictComp:
		g.w.Linef(`SELECT %s AS "key", %s AS "value"`, g.p.expr(node.Key), g.p.expr(node.Value))
		g.emitFromWhere(nil)
	case *ir.Reduction:
		g.emitReduction(node)
	}
}

func (g *gen) emitReduction(node *ir.Reduction) {
	elem := g.p.expr(node.Inner.Element)
	switch node.Op {
	case ir.ReduceSum:
		g.w.Linef("SELECT COALESCE(SUM(%s), 0) AS result", elem)
		g.emitFromWhere(nil)
	case ir.ReduceMax:
		g.w.Linef("SELECT COALESCE(MAX(%s), -9223372036854775808) AS result", elem)
		g.emitFromWhere(nil)
	case ir.ReduceMin:
		g.w.Linef("SELECT COALESCE(MIN(%s), 9223372036854775807) AS result", elem)
		g.emitFromWhere(nil)
	case ir.ReduceAny:
		g.emitQuantifier(elem, false)
	case ir.ReduceAll:
		g.emitQuantifier(elem, true)
	}
}

// emitQuantifier writes Any/All. sqlite has no boolean aggregates, so it
// gets EXISTS / NOT EXISTS subqueries; postgres gets bool_or/bool_and.
func (g *gen) emitQuantifier(elem string, universal bool) {
	if g.dialect == render.DialectPostgres {
		if universal {
			g.w.Linef("SELECT COALESCE(bool_and(%s), TRUE) AS result", elem)
		} else {
			g.w.Linef("SELECT COALESCE(bool_or(%s), FALSE) AS result", elem)
		}
		g.emitFromWhere(nil)
		return
	}

	head := "SELECT EXISTS("
	probe := elem
	if universal {
		head = "SELECT NOT EXISTS("
		probe = "NOT (" + elem + ")"
	}
	g.w.Linef("%s", head)
	g.w.In()
	g.w.Linef("SELECT 1")
	g.emitFromWhere([]string{probe})
	g.w.Out()
	g.w.Linef(") AS result")
}

// emitFromWhere writes the FROM clause, one join per extra clause, with
// each filter attached to the innermost level it references. extra
// conditions land in the WHERE list.
func (g *gen) emitFromWhere(extra []string) {
	clauses := g.clauses()
	byLevel := g.filtersByLevel()

	g.w.Linef("FROM %s", g.source(clauses[0]))
	for i := 1; i < len(clauses); i++ {
		if conds := byLevel[i]; len(conds) > 0 {
			g.w.Linef("JOIN %s ON %s", g.source(clauses[i]), strings.Join(conds, " AND "))
		} else {
			g.w.Linef("CROSS JOIN %s", g.source(clauses[i]))
		}
	}

	where := append(byLevel[0], extra...)
	if len(where) > 0 {
		g.w.Linef("WHERE %s", strings.Join(where, " AND "))
	}
}

// filtersByLevel pushes each filter down to the innermost clause whose
// bound variables it references.
func (g *gen) filtersByLevel() map[int][]string {
	clauses := g.clauses()
	level := map[string]int{}
	for i, cl := range clauses {
		level[cl.Var] = i
	}

	out := map[int][]string{}
	for _, cl := range clauses {
		for _, f := range cl.Filters {
			deepest := 0
			ir.WalkExprs(f, func(e ir.Expr) bool {
				if v, ok := e.(*ir.VarRef); ok {
					if lv, bound := level[v.Name]; bound && lv > deepest {
						deepest = lv
					}
				}
				return true
			})
			out[deepest] = append(out[deepest], g.p.expr(f))
		}
	}
	return out
}

func (g *gen) source(cl ir.Clause) string {
	switch src := cl.Source.(type) {
	case *ir.RangeSource:
		if g.dialect == render.DialectPostgres {
			return fmt.Sprintf("%s AS %s(%s)", generateSeries(src), cl.Var, cl.Var)
		}
		return rangeCTEName(cl.Var)
	case *ir.CollectionSource:
		return fmt.Sprintf("%s AS %s", src.Name, cl.Var)
	}
	return ""
}

// emitCTEs writes one recursive CTE per range clause. The seed row
// carries its own bound check so an empty span yields no rows.
func (g *gen) emitCTEs() {
	var ranges []ir.Clause
	for _, cl := range g.clauses() {
		if _, ok := cl.Source.(*ir.RangeSource); ok {
			ranges = append(ranges, cl)
		}
	}
	if len(ranges) == 0 {
		return
	}

	for i, cl := range ranges {
		src := cl.Source.(*ir.RangeSource)
		head := "WITH RECURSIVE"
		if i > 0 {
			head = ","
		}
		name := rangeCTEName(cl.Var)
		cmp := "<"
		if src.Step < 0 {
			cmp = ">"
		}
		g.w.Linef("%s %s(%s) AS (", head, name, cl.Var)
		g.w.In()
		g.w.Linef("SELECT %d WHERE %d %s %d", src.Start, src.Start, cmp, src.Stop)
		g.w.Linef("UNION ALL")
		g.w.Linef("SELECT %s FROM %s WHERE %s %s %d",
			stepped(cl.Var, src.Step), name, stepped(cl.Var, src.Step), cmp, src.Stop)
		g.w.Out()
		g.w.Linef(")")
	}
}

func stepped(varName string, step int64) string {
	if step < 0 {
		return fmt.Sprintf("%s - %d", varName, -step)
	}
	return fmt.Sprintf("%s + %d", varName, step)
}

func generateSeries(src *ir.RangeSource) string {
	last := src.Stop - 1
	if src.Step < 0 {
		last = src.Stop + 1
	}
	if src.Step == 1 {
		return fmt.Sprintf("generate_series(%d, %d)", src.Start, last)
	}
	return fmt.Sprintf("generate_series(%d, %d, %d)", src.Start, last, src.Step)
}

func rangeCTEName(varName string) string { return varName + "_range" }
