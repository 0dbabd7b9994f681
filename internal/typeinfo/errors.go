package typeinfo

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeAmbiguous = "TYPE_AMBIGUOUS" // residual ambiguity under strict inference
	CodeBadWidth  = "TYPE_BAD_WIDTH" // unsupported integer width
	CodeInternal  = "TYPE_INTERNAL"  // malformed tree reached the inferencer
)

// Error is a fatal inference failure. Outside strict mode only bad
// options or malformed trees produce one; ambiguity degrades to
// warnings instead.
type Error struct {
	Code   string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// IsAmbiguity reports whether err is a strict-mode ambiguity failure.
func IsAmbiguity(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == CodeAmbiguous
	}
	return false
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}
