package juliagen

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
	ir.OpMul: precMul, ir.OpMod: precMul,
}

var binOp = map[ir.BinaryOp]string{
	ir.OpAdd: "+", ir.OpSub: "-", ir.OpMul: "*", ir.OpMod: "%",
	ir.OpEq: "==", ir.OpNe: "!=", ir.OpLt: "<", ir.OpLe: "<=", ir.OpGt: ">", ir.OpGe: ">=",
	ir.OpAnd: "&&", ir.OpOr: "||",
}

type printer struct {
	intType string
	typed   map[string]*schema.Collection
	dynamic map[string]bool
}

func newPrinter(n ir.Node, info *typeinfo.Info, intWidth int) *printer {
	p := &printer{
		intType: "Int64",
		typed:   map[string]*schema.Collection{},
		dynamic: map[string]bool{},
	}
	if intWidth == 32 {
		p.intType = "Int32"
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
		return "Bool"
	}
	return p.intType
}

func (p *printer) scalarType(e ir.Expr) string {
	if p.isBool(e) {
		return "Bool"
	}
	return p.intType
}

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

func (p *printer) identity(op ir.ReduceOp) string {
	switch op {
	case ir.ReduceProduct:
		return fmt.Sprintf("%s(1)", p.intType)
	case ir.ReduceMax:
		return fmt.Sprintf("typemin(%s)", p.intType)
	case ir.ReduceMin:
		return fmt.Sprintf("typemax(%s)", p.intType)
	default:
		return fmt.Sprintf("%s(0)", p.intType)
	}
}

func (p *printer) expr(e ir.Expr) string { return p.print(e, precCond, false) }

// dotted prints e with broadcast operators, for the vectorized form where
// the clause variable is bound to a range vector.
func (p *printer) dotted(e ir.Expr) string { return p.print(e, precCond, true) }

func (p *printer) print(e ir.Expr, parent int, dot bool) string {
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
		base := p.print(expr.Base, precAtom, dot)
		if v, ok := expr.Base.(*ir.VarRef); ok && p.dynamic[v.Name] {
			return fmt.Sprintf("%s[%q]", base, expr.Field)
		}
		return base + "." + expr.Field
	case *ir.Unary:
		op := "-"
		if expr.Op == ir.OpNot {
			op = "!"
		}
		if dot {
			op = "." + op
		}
		return p.paren(op+p.print(expr.Operand, precUnary+1, dot), precUnary, parent)
	case *ir.Binary:
		if expr.Op == ir.OpDiv {
			call := "div"
			if dot {
				call = "div."
			}
			return fmt.Sprintf("%s(%s, %s)", call,
				p.print(expr.Left, precCond, dot), p.print(expr.Right, precCond, dot))
		}
		prec := binPrec[expr.Op]
		op := binOp[expr.Op]
		if dot {
			op = "." + op
		}
		left := p.print(expr.Left, prec, dot)
		right := p.print(expr.Right, prec+1, dot)
		return p.paren(fmt.Sprintf("%s %s %s", left, op, right), prec, parent)
	case *ir.Conditional:
		return p.paren(fmt.Sprintf("%s ? %s : %s",
			p.print(expr.Cond, precCond+1, dot),
			p.print(expr.Then, precCond+1, dot),
			p.print(expr.Else, precCond, dot)), precCond, parent)
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
