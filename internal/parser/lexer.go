package parser

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokLBracket // [
	tokRBracket // ]
	tokLBrace   // {
	tokRBrace   // }
	tokLParen   // (
	tokRParen   // )
	tokColon    // :
	tokComma    // ,
	tokDot      // .
	tokPlus     // +
	tokMinus    // -
	tokStar     // *
	tokFloorDiv // //
	tokPercent  // %
	tokEq       // ==
	tokNe       // !=
	tokLt       // <
	tokLe       // <=
	tokGt       // >
	tokGe       // >=
	tokAssign   // =
	tokFor      // for
	tokIn       // in
	tokIf       // if
	tokElse     // else
	tokNot      // not
	tokAnd      // and
	tokOr       // or
	tokTrue     // True
	tokFalse    // False
)

var keywords = map[string]tokenKind{
	"for":   tokFor,
	"in":    tokIn,
	"if":    tokIf,
	"else":  tokElse,
	"not":   tokNot,
	"and":   tokAnd,
	"or":    tokOr,
	"True":  tokTrue,
	"False": tokFalse,
}

type token struct {
	kind tokenKind
	text string
	pos  Pos
	val  int64 // tokInt only
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokInt:
		return "integer " + t.text
	default:
		return "'" + t.text + "'"
	}
}

// lex tokenizes the whole input up front, so the parser never re-scans.
// Rejections for out-of-grammar lexemes (strings, floats, true division,
// exponentiation) happen here with exact positions.
func lex(src string) ([]token, error) {
	var toks []token
	offset := 0
	line, col := 1, 1

	pos := func() Pos { return Pos{Offset: offset, Line: line, Col: col} }
	advance := func(n int) {
		for i := 0; i < n; i++ {
			if src[offset+i] == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
		offset += n
	}

	for offset < len(src) {
		c := src[offset]

		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			advance(1)
			continue
		}

		start := pos()

		switch c {
		case '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", pos: start})
			advance(1)
			continue
		case ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", pos: start})
			advance(1)
			continue
		case '{':
			toks = append(toks, token{kind: tokLBrace, text: "{", pos: start})
			advance(1)
			continue
		case '}':
			toks = append(toks, token{kind: tokRBrace, text: "}", pos: start})
			advance(1)
			continue
		case '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: start})
			advance(1)
			continue
		case ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: start})
			advance(1)
			continue
		case ':':
			toks = append(toks, token{kind: tokColon, text: ":", pos: start})
			advance(1)
			continue
		case ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: start})
			advance(1)
			continue
		case '.':
			if offset+1 < len(src) && isDigit(src[offset+1]) {
				return nil, unsupportedErr(start, "float literals are not supported")
			}
			toks = append(toks, token{kind: tokDot, text: ".", pos: start})
			advance(1)
			continue
		case '+':
			toks = append(toks, token{kind: tokPlus, text: "+", pos: start})
			advance(1)
			continue
		case '-':
			toks = append(toks, token{kind: tokMinus, text: "-", pos: start})
			advance(1)
			continue
		case '*':
			if offset+1 < len(src) && src[offset+1] == '*' {
				return nil, unsupportedErr(start, "exponentiation (**) is not supported")
			}
			toks = append(toks, token{kind: tokStar, text: "*", pos: start})
			advance(1)
			continue
		case '/':
			if offset+1 < len(src) && src[offset+1] == '/' {
				toks = append(toks, token{kind: tokFloorDiv, text: "//", pos: start})
				advance(2)
				continue
			}
			return nil, unsupportedErr(start, "true division (/) produces floats; use // for integer division")
		case '%':
			toks = append(toks, token{kind: tokPercent, text: "%", pos: start})
			advance(1)
			continue
		case '=':
			if offset+1 < len(src) && src[offset+1] == '=' {
				toks = append(toks, token{kind: tokEq, text: "==", pos: start})
				advance(2)
				continue
			}
			toks = append(toks, token{kind: tokAssign, text: "=", pos: start})
			advance(1)
			continue
		case '!':
			if offset+1 < len(src) && src[offset+1] == '=' {
				toks = append(toks, token{kind: tokNe, text: "!=", pos: start})
				advance(2)
				continue
			}
			return nil, syntaxErr(start, "unexpected character '!'")
		case '<':
			if offset+1 < len(src) && src[offset+1] == '=' {
				toks = append(toks, token{kind: tokLe, text: "<=", pos: start})
				advance(2)
				continue
			}
			toks = append(toks, token{kind: tokLt, text: "<", pos: start})
			advance(1)
			continue
		case '>':
			if offset+1 < len(src) && src[offset+1] == '=' {
				toks = append(toks, token{kind: tokGe, text: ">=", pos: start})
				advance(2)
				continue
			}
			toks = append(toks, token{kind: tokGt, text: ">", pos: start})
			advance(1)
			continue
		case '"', '\'':
			return nil, unsupportedErr(start, "string literals are not supported")
		}

		if isDigit(c) {
			end := offset
			for end < len(src) && isDigit(src[end]) {
				end++
			}
			if end < len(src) && (src[end] == '.' || src[end] == 'e' || src[end] == 'E') {
				return nil, unsupportedErr(start, "float literals are not supported")
			}
			text := src[offset:end]
			val, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return nil, syntaxErr(start, "integer literal out of range: %s", text)
			}
			toks = append(toks, token{kind: tokInt, text: text, pos: start, val: val})
			advance(end - offset)
			continue
		}

		if isIdentStart(c) {
			end := offset
			for end < len(src) && isIdentPart(src[end]) {
				end++
			}
			text := src[offset:end]
			kind := tokIdent
			if kw, ok := keywords[text]; ok {
				kind = kw
			}
			toks = append(toks, token{kind: kind, text: text, pos: start})
			advance(end - offset)
			continue
		}

		r, _ := utf8.DecodeRuneInString(src[offset:])
		if unicode.IsLetter(r) {
			return nil, unsupportedErr(start, "non-ASCII identifiers are not supported")
		}
		return nil, syntaxErr(start, "unexpected character %q", r)
	}

	toks = append(toks, token{kind: tokEOF, text: "", pos: pos()})
	return toks, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
