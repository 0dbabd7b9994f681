// Package schema compiles CUE collection declarations into the flat
// record schemas the type inferencer consumes.
//
// A schema file declares the shape of each named collection a
// comprehension may iterate, e.g.:
//
//	collections: {
//		orders: {
//			price:  int
//			qty:    int
//			active: bool
//		}
//	}
//
// Fields are scalar int or bool only. Floats are rejected at compile
// time so that generated code never needs floating-point record fields.
package schema

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// FieldType is the scalar type of a record field.
type FieldType string

const (
	FieldInt  FieldType = "int"
	FieldBool FieldType = "bool"
)

// Collection is the compiled schema of one named collection: a flat
// record shape, field name to scalar type.
type Collection struct {
	Name   string
	Fields map[string]FieldType
}

// FieldNames returns the collection's field names in sorted order.
func (c *Collection) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompileError is a schema compilation failure with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileCollections parses the "collections" struct of a CUE value
// into compiled collection schemas keyed by collection name.
func CompileCollections(v cue.Value) (map[string]*Collection, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	out := map[string]*Collection{}

	collVal := v.LookupPath(cue.ParsePath("collections"))
	if !collVal.Exists() {
		return out, nil
	}

	iter, err := collVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		coll := &Collection{
			Name:   name,
			Fields: make(map[string]FieldType),
		}

		fieldIter, err := iter.Value().Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for fieldIter.Next() {
			fieldName := fieldIter.Label()
			ft, err := extractFieldType(fieldIter.Value())
			if err != nil {
				return nil, err
			}
			coll.Fields[fieldName] = ft
		}

		if len(coll.Fields) == 0 {
			return nil, &CompileError{
				Field:   "collections." + name,
				Message: "collection must declare at least one field",
				Pos:     iter.Value().Pos(),
			}
		}
		out[name] = coll
	}

	return out, nil
}

// CompileString compiles CUE source text into collection schemas.
func CompileString(src string) (map[string]*Collection, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	return CompileCollections(v)
}

// LoadFile reads and compiles one CUE schema file.
func LoadFile(path string) (map[string]*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileString(string(data), cue.Filename(path))
	return CompileCollections(v)
}

// extractFieldType converts a CUE field type to a FieldType.
// Floats are forbidden: record fields must stay in the integer/boolean
// world the rest of the pipeline guarantees.
func extractFieldType(v cue.Value) (FieldType, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		return FieldInt, nil
	case cue.BoolKind:
		return FieldBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float fields are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	case cue.StringKind:
		return "", &CompileError{
			Field:   "type",
			Message: "string fields are not supported in comprehension schemas",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported field kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
