package sqlgen

import (
	"fmt"
	"strconv"

	"github.com/roach88/polyglot/internal/ir"
)

const (
	precOr = iota
	precAnd
	precNot
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
	ir.OpEq: "=", ir.OpNe: "<>", ir.OpLt: "<", ir.OpLe: "<=", ir.OpGt: ">", ir.OpGe: ">=",
	ir.OpAnd: "AND", ir.OpOr: "OR",
}

type printer struct{}

func (p *printer) expr(e ir.Expr) string { return p.print(e, precOr) }

func (p *printer) print(e ir.Expr, parent int) string {
	switch expr := e.(type) {
	case *ir.IntLit:
		if expr.Value < 0 {
			return p.paren("-"+strconv.FormatInt(-expr.Value, 10), precUnary, parent)
		}
		return strconv.FormatInt(expr.Value, 10)
	case *ir.BoolLit:
		if expr.Value {
			return "TRUE"
		}
		return "FALSE"
	case *ir.VarRef:
		return expr.Name
	case *ir.FieldAccess:
		return p.print(expr.Base, precAtom) + "." + expr.Field
	case *ir.Unary:
		if expr.Op == ir.OpNot {
			return p.paren("NOT "+p.print(expr.Operand, precNot+1), precNot, parent)
		}
		return p.paren("-"+p.print(expr.Operand, precUnary+1), precUnary, parent)
	case *ir.Binary:
		prec := binPrec[expr.Op]
		left := p.print(expr.Left, prec)
		right := p.print(expr.Right, prec+1)
		return p.paren(fmt.Sprintf("%s %s %s", left, binOp[expr.Op], right), prec, parent)
	case *ir.Conditional:
		// CASE delimits itself; no parens needed at any position.
		return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END",
			p.print(expr.Cond, precOr),
			p.print(expr.Then, precOr),
			p.print(expr.Else, precOr))
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
