package rustgen

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/schema"
	"github.com/roach88/polyglot/internal/typeinfo"
)

// Operator precedence, loosest first. A conditional expression binds
// loosest of all and always gets parenthesized inside an operator.
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

// printer renders IR expressions as Rust expressions with minimal
// parentheses. It knows which bound variables carry a schema-typed
// record (struct field access) versus the dynamic map form.
type printer struct {
	intType string
	typed   map[string]*schema.Collection
	dynamic map[string]bool
}

func newPrinter(n ir.Node, info *typeinfo.Info, intWidth int) *printer {
	p := &printer{
		intType: "i64",
		typed:   map[string]*schema.Collection{},
		dynamic: map[string]bool{},
	}
	if intWidth == 32 {
		p.intType = "i32"
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

func (p *printer) hasDynamicCollection() bool { return len(p.dynamic) > 0 }

// typedCollections returns schema-typed collection names, sorted for
// deterministic struct emission order.
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

func (p *printer) typeOf(t typeinfo.Type) string {
	switch t.Kind {
	case typeinfo.KindInt:
		return fmt.Sprintf("i%d", t.Width)
	case typeinfo.KindBool:
		return "bool"
	case typeinfo.KindSeq:
		return "Vec<" + p.typeOf(*t.Elem) + ">"
	case typeinfo.KindSet:
		return "HashSet<" + p.typeOf(*t.Elem) + ">"
	case typeinfo.KindMap:
		return fmt.Sprintf("HashMap<%s, %s>", p.typeOf(*t.Key), p.typeOf(*t.Value))
	default:
		return p.intType
	}
}

func (p *printer) elemType() string  { return p.intType }
func (p *printer) keyType() string   { return p.intType }
func (p *printer) valueType() string { return p.intType }

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
		return p.paren(op+p.print(expr.Operand, precUnary), precUnary, parent)
	case *ir.Binary:
		prec := binPrec[expr.Op]
		left := p.print(expr.Left, prec)
		right := p.print(expr.Right, prec+1)
		return p.paren(fmt.Sprintf("%s %s %s", left, binOp[expr.Op], right), prec, parent)
	case *ir.Conditional:
		s := fmt.Sprintf("if %s { %s } else { %s }",
			p.print(expr.Cond, precCond),
			p.print(expr.Then, precCond),
			p.print(expr.Else, precCond))
		return p.paren(s, precCond, parent)
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
