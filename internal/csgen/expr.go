package csgen

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
	ir.OpAdd: "+", ir.OpSub: "-", ir.OpMul: "*", ir.OpDiv: "/", ir.OpMod: "%",
	ir.OpEq: "==", ir.OpNe: "!=", ir.OpLt: "<", ir.OpLe: "<=", ir.OpGt: ">", ir.OpGe: ">=",
	ir.OpAnd: "&&", ir.OpOr: "||",
}

type printer struct {
	intType string
	width   int
	typed   map[string]*schema.Collection
	dynamic map[string]bool
}

func newPrinter(n ir.Node, info *typeinfo.Info, intWidth int) *printer {
	p := &printer{
		intType: "long",
		width:   64,
		typed:   map[string]*schema.Collection{},
		dynamic: map[string]bool{},
	}
	if intWidth == 32 {
		p.intType = "int"
		p.width = 32
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
		return "bool"
	}
	return p.intType
}

func (p *printer) scalarType(e ir.Expr) string {
	if p.isBool(e) {
		return "bool"
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

func (p *printer) one() string {
	if p.width == 32 {
		return "1"
	}
	return "1L"
}

func (p *printer) minSentinel() string {
	if p.width == 32 {
		return "int.MinValue"
	}
	return "long.MinValue"
}

func (p *printer) maxSentinel() string {
	if p.width == 32 {
		return "int.MaxValue"
	}
	return "long.MaxValue"
}

func (p *printer) identity(op ir.ReduceOp) string {
	switch op {
	case ir.ReduceProduct:
		return "1"
	case ir.ReduceMax:
		return p.minSentinel()
	case ir.ReduceMin:
		return p.maxSentinel()
	default:
		return "0"
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
		return base + "." + pascal(expr.Field)
	case *ir.Unary:
		op := "-"
		if expr.Op == ir.OpNot {
			op = "!"
		}
		// Operand one level tighter: -- is the decrement operator.
		return p.paren(op+p.print(expr.Operand, precUnary+1), precUnary, parent)
	case *ir.Binary:
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
