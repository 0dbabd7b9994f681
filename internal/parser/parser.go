// Package parser turns restricted comprehension source text into IR trees.
//
// The accepted grammar is a small Python-shaped subset: list/set/dict
// comprehensions and generator-expression reduction calls (sum, prod,
// max, min, any, all) over range(...) or named-collection sources, with
// integer/boolean scalar expressions. Anything outside the grammar fails
// with a positioned Error; there is no best-effort mode.
package parser

import (
	"github.com/roach88/polyglot/internal/ir"
)

// Bounded-input policy. Inputs beyond these limits are rejected
// deterministically before any unbounded parse work happens.
const (
	MaxSourceBytes = 64 << 10
	MaxClauses     = 8
	MaxExprDepth   = 64
)

var reduceNames = map[string]ir.ReduceOp{
	"sum":     ir.ReduceSum,
	"prod":    ir.ReduceProduct,
	"product": ir.ReduceProduct,
	"max":     ir.ReduceMax,
	"min":     ir.ReduceMin,
	"any":     ir.ReduceAny,
	"all":     ir.ReduceAll,
}

// Parse converts source text into an IR tree. The same text always
// produces a structurally identical tree. An optional leading
// "name =" assignment is tolerated and discarded, matching the way
// snippets are usually pasted in.
func Parse(src string) (ir.Node, error) {
	if len(src) > MaxSourceBytes {
		return nil, unsupportedErr(Pos{Line: 1, Col: 1}, "input exceeds %d bytes", MaxSourceBytes)
	}

	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}

	// Optional "name =" prefix.
	if p.cur().kind == tokIdent && p.peek().kind == tokAssign {
		p.advance()
		p.advance()
	}

	node, err := p.parseTop()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, syntaxErr(p.cur().pos, "unexpected %s after expression", p.cur().describe())
	}
	return node, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) cur() token  { return p.toks[p.i] }
func (p *parser) peek() token {
	if p.i+1 < len(p.toks) {
		return p.toks[p.i+1]
	}
	return p.toks[len(p.toks)-1]
}
func (p *parser) advance() token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.cur().kind != kind {
		return token{}, syntaxErr(p.cur().pos, "expected %s, got %s", what, p.cur().describe())
	}
	return p.advance(), nil
}

func (p *parser) parseTop() (ir.Node, error) {
	switch p.cur().kind {
	case tokLBracket:
		return p.parseListComp()
	case tokLBrace:
		return p.parseBraceComp()
	case tokIdent:
		name := p.cur().text
		if op, ok := reduceNames[name]; ok && p.peek().kind == tokLParen {
			p.advance()
			return p.parseReduction(op)
		}
		if name == "math" && p.peek().kind == tokDot {
			dotPos := p.peek().pos
			p.advance()
			p.advance()
			attr, err := p.expect(tokIdent, "identifier after 'math.'")
			if err != nil {
				return nil, err
			}
			if attr.text != "prod" || p.cur().kind != tokLParen {
				return nil, unsupportedErr(dotPos, "unsupported function math.%s", attr.text)
			}
			return p.parseReduction(ir.ReduceProduct)
		}
		return nil, unsupportedErr(p.cur().pos,
			"top level must be a comprehension or a reduction call (sum/prod/max/min/any/all)")
	default:
		return nil, syntaxErr(p.cur().pos, "expected comprehension or reduction call, got %s", p.cur().describe())
	}
}

func (p *parser) parseListComp() (ir.Node, error) {
	if _, err := p.expect(tokLBracket, "'['"); err != nil {
		return nil, err
	}
	elem, err := p.parseTernary(0)
	if err != nil {
		return nil, err
	}
	clauses, err := p.parseClauses()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRBracket, "']'"); err != nil {
		return nil, err
	}
	return &ir.ListComp{Clauses: clauses, Element: elem}, nil
}

func (p *parser) parseBraceComp() (ir.Node, error) {
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	first, err := p.parseTernary(0)
	if err != nil {
		return nil, err
	}

	if p.cur().kind == tokColon {
		p.advance()
		val, err := p.parseTernary(0)
		if err != nil {
			return nil, err
		}
		clauses, err := p.parseClauses()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBrace, "'}'"); err != nil {
			return nil, err
		}
		return &ir.DictComp{Clauses: clauses, Key: first, Value: val}, nil
	}

	clauses, err := p.parseClauses()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return &ir.SetComp{Clauses: clauses, Element: first}, nil
}

func (p *parser) parseReduction(op ir.ReduceOp) (ir.Node, error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	elem, err := p.parseTernary(0)
	if err != nil {
		return nil, err
	}
	clauses, err := p.parseClauses()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &ir.Reduction{
		Op:    op,
		Inner: &ir.ListComp{Clauses: clauses, Element: elem},
	}, nil
}

// parseClauses parses one or more "for v in src [if pred]..." clauses.
// Clause order is outer-to-inner nesting order and is preserved as given.
func (p *parser) parseClauses() ([]ir.Clause, error) {
	var clauses []ir.Clause
	seen := map[string]bool{}

	if p.cur().kind != tokFor {
		return nil, syntaxErr(p.cur().pos, "expected 'for', got %s", p.cur().describe())
	}

	for p.cur().kind == tokFor {
		forPos := p.cur().pos
		p.advance()

		if len(clauses) >= MaxClauses {
			return nil, unsupportedErr(forPos, "more than %d generator clauses", MaxClauses)
		}

		varTok, err := p.expect(tokIdent, "bound variable name")
		if err != nil {
			return nil, err
		}
		if seen[varTok.text] {
			return nil, unsupportedErr(varTok.pos, "bound variable %q shadows an outer clause", varTok.text)
		}
		seen[varTok.text] = true

		if _, err := p.expect(tokIn, "'in'"); err != nil {
			return nil, err
		}

		source, err := p.parseSource()
		if err != nil {
			return nil, err
		}

		var filters []ir.Expr
		for p.cur().kind == tokIf {
			p.advance()
			// Python restricts comprehension filters to or-expressions;
			// a ternary in filter position needs parentheses.
			pred, err := p.parseOr(0)
			if err != nil {
				return nil, err
			}
			filters = append(filters, pred)
		}

		clauses = append(clauses, ir.Clause{Var: varTok.text, Source: source, Filters: filters})
	}

	return clauses, nil
}

func (p *parser) parseSource() (ir.Source, error) {
	tok, err := p.expect(tokIdent, "iteration source (range(...) or collection name)")
	if err != nil {
		return nil, err
	}

	if tok.text == "range" {
		if p.cur().kind != tokLParen {
			return nil, syntaxErr(p.cur().pos, "expected '(' after range")
		}
		p.advance()

		args := make([]int64, 0, 3)
		for {
			v, err := p.parseRangeArg()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
			if p.cur().kind == tokComma {
				if len(args) == 3 {
					return nil, syntaxErr(p.cur().pos, "range takes at most 3 arguments")
				}
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}

		r := &ir.RangeSource{Step: 1}
		switch len(args) {
		case 1:
			r.Stop = args[0]
		case 2:
			r.Start, r.Stop = args[0], args[1]
		case 3:
			r.Start, r.Stop, r.Step = args[0], args[1], args[2]
		}
		if r.Step == 0 {
			return nil, syntaxErr(tok.pos, "range step must not be zero")
		}
		return r, nil
	}

	if p.cur().kind == tokLParen {
		return nil, unsupportedErr(tok.pos, "only range(...) calls are supported as iteration sources, got %s(...)", tok.text)
	}
	return &ir.CollectionSource{Name: tok.text}, nil
}

// parseRangeArg parses an optionally negated integer literal. Range
// bounds must be constants; anything else is outside the grammar.
func (p *parser) parseRangeArg() (int64, error) {
	neg := false
	if p.cur().kind == tokMinus {
		neg = true
		p.advance()
	}
	if p.cur().kind != tokInt {
		return 0, unsupportedErr(p.cur().pos, "range bounds must be integer constants, got %s", p.cur().describe())
	}
	v := p.advance().val
	if neg {
		v = -v
	}
	return v, nil
}

func (p *parser) depthCheck(depth int, pos Pos) error {
	if depth > MaxExprDepth {
		return unsupportedErr(pos, "expression nesting exceeds depth limit (%d)", MaxExprDepth)
	}
	return nil
}

// parseTernary parses "then if cond else else", Python's conditional
// expression. The else branch nests right-associatively.
func (p *parser) parseTernary(depth int) (ir.Expr, error) {
	if err := p.depthCheck(depth, p.cur().pos); err != nil {
		return nil, err
	}
	then, err := p.parseOr(depth + 1)
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokIf {
		return then, nil
	}
	p.advance()
	cond, err := p.parseOr(depth + 1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokElse, "'else'"); err != nil {
		return nil, err
	}
	els, err := p.parseTernary(depth + 1)
	if err != nil {
		return nil, err
	}
	return &ir.Conditional{Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) parseOr(depth int) (ir.Expr, error) {
	if err := p.depthCheck(depth, p.cur().pos); err != nil {
		return nil, err
	}
	left, err := p.parseAnd(depth + 1)
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOr {
		p.advance()
		right, err := p.parseAnd(depth + 1)
		if err != nil {
			return nil, err
		}
		left = &ir.Binary{Op: ir.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd(depth int) (ir.Expr, error) {
	left, err := p.parseNot(depth + 1)
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokAnd {
		p.advance()
		right, err := p.parseNot(depth + 1)
		if err != nil {
			return nil, err
		}
		left = &ir.Binary{Op: ir.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot(depth int) (ir.Expr, error) {
	if err := p.depthCheck(depth, p.cur().pos); err != nil {
		return nil, err
	}
	if p.cur().kind == tokNot {
		p.advance()
		operand, err := p.parseNot(depth + 1)
		if err != nil {
			return nil, err
		}
		return &ir.Unary{Op: ir.OpNot, Operand: operand}, nil
	}
	return p.parseComparison(depth + 1)
}

var comparisonOps = map[tokenKind]ir.BinaryOp{
	tokEq: ir.OpEq,
	tokNe: ir.OpNe,
	tokLt: ir.OpLt,
	tokLe: ir.OpLe,
	tokGt: ir.OpGt,
	tokGe: ir.OpGe,
}

func (p *parser) parseComparison(depth int) (ir.Expr, error) {
	left, err := p.parseArith(depth + 1)
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOps[p.cur().kind]
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseArith(depth + 1)
	if err != nil {
		return nil, err
	}
	if _, chained := comparisonOps[p.cur().kind]; chained {
		return nil, unsupportedErr(p.cur().pos, "chained comparisons are not supported; combine with 'and'")
	}
	return &ir.Binary{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseArith(depth int) (ir.Expr, error) {
	if err := p.depthCheck(depth, p.cur().pos); err != nil {
		return nil, err
	}
	left, err := p.parseTerm(depth + 1)
	if err != nil {
		return nil, err
	}
	for {
		var op ir.BinaryOp
		switch p.cur().kind {
		case tokPlus:
			op = ir.OpAdd
		case tokMinus:
			op = ir.OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm(depth + 1)
		if err != nil {
			return nil, err
		}
		left = &ir.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseTerm(depth int) (ir.Expr, error) {
	left, err := p.parseFactor(depth + 1)
	if err != nil {
		return nil, err
	}
	for {
		var op ir.BinaryOp
		switch p.cur().kind {
		case tokStar:
			op = ir.OpMul
		case tokFloorDiv:
			op = ir.OpDiv
		case tokPercent:
			op = ir.OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseFactor(depth + 1)
		if err != nil {
			return nil, err
		}
		left = &ir.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseFactor(depth int) (ir.Expr, error) {
	if err := p.depthCheck(depth, p.cur().pos); err != nil {
		return nil, err
	}
	if p.cur().kind == tokMinus {
		p.advance()
		operand, err := p.parseFactor(depth + 1)
		if err != nil {
			return nil, err
		}
		// Fold negated literals so -5 is one node, like Python's AST does
		// after constant folding.
		if lit, ok := operand.(*ir.IntLit); ok {
			return &ir.IntLit{Value: -lit.Value}, nil
		}
		return &ir.Unary{Op: ir.OpNeg, Operand: operand}, nil
	}
	return p.parseAtom(depth + 1)
}

func (p *parser) parseAtom(depth int) (ir.Expr, error) {
	if err := p.depthCheck(depth, p.cur().pos); err != nil {
		return nil, err
	}
	switch p.cur().kind {
	case tokInt:
		tok := p.advance()
		return &ir.IntLit{Value: tok.val}, nil
	case tokTrue:
		p.advance()
		return &ir.BoolLit{Value: true}, nil
	case tokFalse:
		p.advance()
		return &ir.BoolLit{Value: false}, nil
	case tokLParen:
		p.advance()
		inner, err := p.parseTernary(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		tok := p.advance()
		if p.cur().kind == tokLParen {
			return nil, unsupportedErr(tok.pos, "function calls are not supported inside expressions: %s(...)", tok.text)
		}
		if p.cur().kind != tokDot {
			return &ir.VarRef{Name: tok.text}, nil
		}
		p.advance()
		field, err := p.expect(tokIdent, "field name after '.'")
		if err != nil {
			return nil, err
		}
		if p.cur().kind == tokDot {
			return nil, unsupportedErr(p.cur().pos, "nested attribute access is not supported; records are flat")
		}
		if p.cur().kind == tokLParen {
			return nil, unsupportedErr(field.pos, "method calls are not supported: .%s(...)", field.text)
		}
		return &ir.FieldAccess{Base: &ir.VarRef{Name: tok.text}, Field: field.text}, nil
	default:
		return nil, syntaxErr(p.cur().pos, "expected expression, got %s", p.cur().describe())
	}
}
