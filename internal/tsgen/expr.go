package tsgen

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/schema"
	"github.com/roach88/polyglot/internal/typeinfo"
)

const (
	precCond = iota
	precOr
	precAnd
	precCmp
	precAdd
	precMul
	precUnary
	precAtom
)

var binPrec = map[ir.BinaryOp]int{
	ir.OpOr:  precOr,
	ir.OpAnd: precAnd,
	ir.OpEq:  precCmp, ir.OpNe: precCmp,
	ir.OpLt: precCmp, ir.OpLe: precCmp, ir.OpGt: precCmp, ir.OpGe: precCmp,
	ir.OpAdd: precAdd, ir.OpSub: precAdd,
	ir.OpMul: precMul, ir.OpDiv: precMul, ir.OpMod: precMul,
}

var binOp = map[ir.BinaryOp]string{
	ir.OpAdd: "+", ir.OpSub: "-", ir.OpMul: "*", ir.OpMod: "%",
	ir.OpEq: "===", ir.OpNe: "!==", ir.OpLt: "<", ir.OpLe: "<=", ir.OpGt: ">", ir.OpGe: ">=",
	ir.OpAnd: "&&", ir.OpOr: "||",
}

type printer struct {
	info    *typeinfo.Info
	typed   map[string]*schema.Collection
	dynamic map[string]bool
}

func newPrinter(n ir.Node, info *typeinfo.Info) *printer {
	p := &printer{
		info:    info,
		typed:   map[string]*schema.Collection{},
		dynamic: map[string]bool{},
	}
	for _, cl := range ir.Clauses(n) {
		if _, ok := cl.Source.(*ir.CollectionSource); !ok {
			continue
		}
		if info != nil {
			if vt, ok := info.Vars[cl.Var]; ok && vt.Kind == typeinfo.KindRecord && vt.Record != nil {
				p.typed[cl.Var] = vt.Record
				continue
			}
		}
		p.dynamic[cl.Var] = true
	}
	return p
}

func (p *printer) isTyped(varName string) bool { return p.typed[varName] != nil }

func (p *printer) typedCollections() []string {
	seen := map[string]bool{}
	var names []string
	for _, coll := range p.typed {
		if !seen[coll.Name] {
			seen[coll.Name] = true
			names = append(names, coll.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (p *printer) schemaOf(collection string) *schema.Collection {
	for _, coll := range p.typed {
		if coll.Name == collection {
			return coll
		}
	}
	return nil
}

func (p *printer) fieldType(ft schema.FieldType) string {
	if ft == schema.FieldBool {
		return "boolean"
	}
	return "number"
}

func (p *printer) scalarType(e ir.Expr) string {
	if p.isBool(e) {
		return "boolean"
	}
	return "number"
}

func (p *printer) arrayType(e ir.Expr) string { return p.scalarType(e) + "[]" }

// isBool classifies an expression syntactically so typed output does not
// depend on whether inference ran.
func (p *printer) isBool(e ir.Expr) bool {
	switch expr := e.(type) {
	case *ir.BoolLit:
		return true
	case *ir.Unary:
		return expr.Op == ir.OpNot
	case *ir.Binary:
		return binPrec[expr.Op] <= precCmp
	case *ir.Conditional:
		return p.isBool(expr.Then) && p.isBool(expr.Else)
	case *ir.FieldAccess:
		if v, ok := expr.Base.(*ir.VarRef); ok {
			if coll := p.typed[v.Name]; coll != nil {
				return coll.Fields[expr.Field] == schema.FieldBool
			}
		}
		return false
	default:
		return false
	}
}

func (p *printer) expr(e ir.Expr) string { return p.print(e, precCond) }

func (p *printer) print(e ir.Expr, parent int) string {
	switch expr := e.(type) {
	case *ir.IntLit:
		if expr.Value < 0 {
			return p.paren("-"+strconv.FormatInt(-expr.Value, 10), precUnary, parent)
		}
		return strconv.FormatInt(expr.Value, 10)
	case *ir.BoolLit:
		return strconv.FormatBool(expr.Value)
	case *ir.VarRef:
		return expr.Name
	case *ir.FieldAccess:
		base := p.print(expr.Base, precAtom)
		if v, ok := expr.Base.(*ir.VarRef); ok && p.dynamic[v.Name] {
			return fmt.Sprintf("%s[%q]", base, expr.Field)
		}
		return base + "." + expr.Field
	case *ir.Unary:
		op := "-"
		if expr.Op == ir.OpNot {
			op = "!"
		}
		// Operand one level tighter so --x never appears.
		return p.paren(op+p.print(expr.Operand, precUnary+1), precUnary, parent)
	case *ir.Binary:
		if expr.Op == ir.OpDiv {
			// JS division is floating point; Math.trunc restores the
			// truncating integer quotient.
			return fmt.Sprintf("Math.trunc(%s / %s)",
				p.print(expr.Left, precMul), p.print(expr.Right, precMul+1))
		}
		prec := binPrec[expr.Op]
		left := p.print(expr.Left, prec)
		right := p.print(expr.Right, prec+1)
		return p.paren(fmt.Sprintf("%s %s %s", left, binOp[expr.Op], right), prec, parent)
	case *ir.Conditional:
		return p.paren(fmt.Sprintf("%s ? %s : %s",
			p.print(expr.Cond, precCond+1),
			p.print(expr.Then, precCond+1),
			p.print(expr.Else, precCond)), precCond, parent)
	default:
		return "0"
	}
}

func (p *printer) paren(s string, prec, parent int) string {
	if prec < parent {
		return "(" + s + ")"
	}
	return s
}
