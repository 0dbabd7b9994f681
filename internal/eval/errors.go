package eval

import "errors"

// Error reports an evaluation failure: missing data, a type mismatch,
// or a zero divisor.
type Error struct {
	Detail string
}

func (e *Error) Error() string { return "eval: " + e.Detail }

// IsEvalError reports whether err is an evaluation failure.
func IsEvalError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
