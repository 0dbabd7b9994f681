package render

import (
	"errors"
	"fmt"

	"github.com/roach88/polyglot/internal/strategy"
)

// BackendError is a fatal emission failure for one strategy form. The
// dispatcher retries the Loops form first; only a Loops failure
// surfaces to the caller.
type BackendError struct {
	Backend  string
	Strategy strategy.Strategy
	Detail   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: cannot render %s form: %s", e.Backend, e.Strategy, e.Detail)
}

// Errorf builds a BackendError.
func Errorf(backend string, st strategy.Strategy, format string, args ...any) *BackendError {
	return &BackendError{Backend: backend, Strategy: st, Detail: fmt.Sprintf(format, args...)}
}

// IsBackendError reports whether err is an emission failure, unwrapping
// as needed.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
