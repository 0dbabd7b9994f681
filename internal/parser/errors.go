package parser

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes parse failures.
type ErrorKind string

const (
	// KindSyntax indicates malformed input that no extension of the
	// grammar would accept.
	KindSyntax ErrorKind = "SYNTAX_ERROR"

	// KindUnsupported indicates syntactically recognizable input that is
	// deliberately outside the restricted grammar (function calls, true
	// division, string or float literals, mutation).
	KindUnsupported ErrorKind = "UNSUPPORTED_CONSTRUCT"
)

// Pos is a position in the input source.
type Pos struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Col    int // 1-based, in bytes
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Error is the parser's failure type. Parsing either fully succeeds or
// fails with one of these; there is no partial result.
type Error struct {
	Kind   ErrorKind
	Pos    Pos
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Detail)
}

// IsUnsupported reports whether err is an out-of-grammar rejection rather
// than malformed syntax. Uses errors.As to handle wrapped errors.
func IsUnsupported(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindUnsupported
	}
	return false
}

func syntaxErr(pos Pos, format string, args ...any) *Error {
	return &Error{Kind: KindSyntax, Pos: pos, Detail: fmt.Sprintf(format, args...)}
}

func unsupportedErr(pos Pos, format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Pos: pos, Detail: fmt.Sprintf(format, args...)}
}
