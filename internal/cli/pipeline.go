package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/parser"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/schema"
	"github.com/roach88/polyglot/internal/typeinfo"
)

// Generic error codes for failures outside the typed taxonomies.
const (
	ErrCodeGeneric   = "CLI_ERROR"
	ErrCodeInput     = "INPUT_ERROR"
	ErrCodeRender    = "RENDER_ERROR"
	ErrCodeEval      = "EVAL_ERROR"
	ErrCodeWriteFail = "WRITE_FAILED"
)

// newLogger returns a development-mode zap logger on stderr when verbose
// is set, and a no-op logger otherwise. Every invocation carries a fresh
// request id so interleaved runs stay distinguishable.
func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("request_id", uuid.NewString()))
}

// readExpression resolves the expression source: the positional argument
// or, with --file, the file contents.
func readExpression(args []string, filePath string) (string, error) {
	if filePath != "" {
		raw, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read expression file: %w", err)
		}
		return string(raw), nil
	}
	if len(args) == 0 {
		return "", errors.New("an expression argument or --file is required")
	}
	return args[0], nil
}

// compile runs the front half of the pipeline: parse, optional schema
// load, type inference.
func compile(src, schemaPath string, intWidth int, strict bool, logger *zap.Logger) (ir.Node, *typeinfo.Info, error) {
	n, err := parser.Parse(src)
	if err != nil {
		return nil, nil, err
	}

	var schemas map[string]*schema.Collection
	if schemaPath != "" {
		schemas, err = schema.LoadFile(schemaPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("schema loaded", zap.String("path", schemaPath), zap.Int("collections", len(schemas)))
	}

	info, err := typeinfo.Infer(n, typeinfo.Options{
		IntWidth: intWidth,
		Strict:   strict,
		Schemas:  schemas,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("types inferred",
		zap.String("result", info.Result.String()),
		zap.Int("warnings", len(info.Warnings)))
	return n, info, nil
}

// classify maps a pipeline error onto an exit code and an error code
// drawn from the typed taxonomies.
func classify(err error) (int, string) {
	var parseErr *parser.Error
	if errors.As(err, &parseErr) {
		return ExitFailure, string(parseErr.Kind)
	}
	var typeErr *typeinfo.Error
	if errors.As(err, &typeErr) {
		return ExitFailure, typeErr.Code
	}
	var backendErr *render.BackendError
	if errors.As(err, &backendErr) {
		return ExitFailure, ErrCodeRender
	}
	return ExitCommandError, ErrCodeGeneric
}
