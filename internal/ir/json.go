package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Tag values for the "node", "source" and "expr" discriminator keys.
const (
	tagListComp  = "list_comp"
	tagSetComp   = "set_comp"
	tagDictComp  = "dict_comp"
	tagReduction = "reduction"

	tagRange      = "range"
	tagCollection = "collection"

	tagInt    = "int"
	tagBool   = "bool"
	tagVar    = "var"
	tagField  = "field"
	tagUnary  = "unary"
	tagBinary = "binary"
	tagCond   = "cond"
)

// EncodeCanonical serializes an IR tree to its canonical JSON wire form.
// The output is byte-stable: encoding the same tree twice, or a tree
// decoded from the output, yields identical bytes. Non-semantic metadata
// (source formatting, spans) is never part of the encoding.
func EncodeCanonical(n Node) ([]byte, error) {
	tree, err := nodeTree(n)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(tree)
}

// Decode parses the tagged JSON form back into an IR tree. Floats and
// nulls anywhere in the document are rejected.
func Decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode IR: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode IR: top level must be an object, got %T", raw)
	}
	return decodeNode(obj)
}

func nodeTree(n Node) (map[string]any, error) {
	switch node := n.(type) {
	case *ListComp:
		return compTree(tagListComp, node.Clauses, map[string]any{"element": exprTree(node.Element)})
	case *SetComp:
		return compTree(tagSetComp, node.Clauses, map[string]any{"element": exprTree(node.Element)})
	case *DictComp:
		return compTree(tagDictComp, node.Clauses, map[string]any{
			"key":   exprTree(node.Key),
			"value": exprTree(node.Value),
		})
	case *Reduction:
		if node.Inner == nil {
			return nil, fmt.Errorf("encode IR: reduction %q has no inner comprehension", node.Op)
		}
		inner, err := nodeTree(node.Inner)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"node":  tagReduction,
			"op":    string(node.Op),
			"inner": inner,
		}, nil
	default:
		return nil, fmt.Errorf("encode IR: unknown node type %T", n)
	}
}

func compTree(tag string, clauses []Clause, extra map[string]any) (map[string]any, error) {
	clauseList := make([]any, len(clauses))
	for i, c := range clauses {
		filters := make([]any, len(c.Filters))
		for j, f := range c.Filters {
			filters[j] = exprTree(f)
		}
		src, err := sourceTree(c.Source)
		if err != nil {
			return nil, fmt.Errorf("clause[%d]: %w", i, err)
		}
		clauseList[i] = map[string]any{
			"var":     c.Var,
			"source":  src,
			"filters": filters,
		}
	}
	tree := map[string]any{
		"node":    tag,
		"clauses": clauseList,
	}
	for k, v := range extra {
		tree[k] = v
	}
	return tree, nil
}

func sourceTree(s Source) (map[string]any, error) {
	switch src := s.(type) {
	case *RangeSource:
		return map[string]any{
			"source": tagRange,
			"start":  src.Start,
			"stop":   src.Stop,
			"step":   src.Step,
		}, nil
	case *CollectionSource:
		return map[string]any{
			"source": tagCollection,
			"name":   src.Name,
		}, nil
	default:
		return nil, fmt.Errorf("unknown source type %T", s)
	}
}

func exprTree(e Expr) map[string]any {
	switch expr := e.(type) {
	case *IntLit:
		return map[string]any{"expr": tagInt, "value": expr.Value}
	case *BoolLit:
		return map[string]any{"expr": tagBool, "value": expr.Value}
	case *VarRef:
		return map[string]any{"expr": tagVar, "name": expr.Name}
	case *FieldAccess:
		return map[string]any{"expr": tagField, "base": exprTree(expr.Base), "field": expr.Field}
	case *Unary:
		return map[string]any{"expr": tagUnary, "op": string(expr.Op), "operand": exprTree(expr.Operand)}
	case *Binary:
		return map[string]any{
			"expr":  tagBinary,
			"op":    string(expr.Op),
			"left":  exprTree(expr.Left),
			"right": exprTree(expr.Right),
		}
	case *Conditional:
		return map[string]any{
			"expr": tagCond,
			"cond": exprTree(expr.Cond),
			"then": exprTree(expr.Then),
			"else": exprTree(expr.Else),
		}
	default:
		// Sealed union: unreachable for trees built by the parser.
		return map[string]any{"expr": "invalid"}
	}
}

func decodeNode(obj map[string]any) (Node, error) {
	tag, err := strField(obj, "node")
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagListComp:
		clauses, err := decodeClauses(obj)
		if err != nil {
			return nil, err
		}
		elem, err := decodeExprField(obj, "element")
		if err != nil {
			return nil, err
		}
		return &ListComp{Clauses: clauses, Element: elem}, nil
	case tagSetComp:
		clauses, err := decodeClauses(obj)
		if err != nil {
			return nil, err
		}
		elem, err := decodeExprField(obj, "element")
		if err != nil {
			return nil, err
		}
		return &SetComp{Clauses: clauses, Element: elem}, nil
	case tagDictComp:
		clauses, err := decodeClauses(obj)
		if err != nil {
			return nil, err
		}
		key, err := decodeExprField(obj, "key")
		if err != nil {
			return nil, err
		}
		val, err := decodeExprField(obj, "value")
		if err != nil {
			return nil, err
		}
		return &DictComp{Clauses: clauses, Key: key, Value: val}, nil
	case tagReduction:
		opStr, err := strField(obj, "op")
		if err != nil {
			return nil, err
		}
		op := ReduceOp(opStr)
		if !ValidReduceOps[op] {
			return nil, fmt.Errorf("decode IR: unknown reduction op %q", opStr)
		}
		innerObj, ok := obj["inner"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode IR: reduction inner must be an object")
		}
		inner, err := decodeNode(innerObj)
		if err != nil {
			return nil, err
		}
		innerList, ok := inner.(*ListComp)
		if !ok {
			return nil, fmt.Errorf("decode IR: reduction inner must be a list_comp, got %T", inner)
		}
		return &Reduction{Op: op, Inner: innerList}, nil
	default:
		return nil, fmt.Errorf("decode IR: unknown node tag %q", tag)
	}
}

func decodeClauses(obj map[string]any) ([]Clause, error) {
	rawList, ok := obj["clauses"].([]any)
	if !ok {
		return nil, fmt.Errorf("decode IR: clauses must be an array")
	}
	if len(rawList) == 0 {
		return nil, fmt.Errorf("decode IR: at least one generator clause is required")
	}
	clauses := make([]Clause, len(rawList))
	for i, raw := range rawList {
		cObj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode IR: clause[%d] must be an object", i)
		}
		v, err := strField(cObj, "var")
		if err != nil {
			return nil, fmt.Errorf("clause[%d]: %w", i, err)
		}
		srcObj, ok := cObj["source"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode IR: clause[%d] source must be an object", i)
		}
		src, err := decodeSource(srcObj)
		if err != nil {
			return nil, fmt.Errorf("clause[%d]: %w", i, err)
		}
		var filters []Expr
		if rawFilters, ok := cObj["filters"].([]any); ok {
			for j, rf := range rawFilters {
				fObj, ok := rf.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("decode IR: clause[%d] filter[%d] must be an object", i, j)
				}
				f, err := decodeExpr(fObj)
				if err != nil {
					return nil, fmt.Errorf("clause[%d] filter[%d]: %w", i, j, err)
				}
				filters = append(filters, f)
			}
		}
		clauses[i] = Clause{Var: v, Source: src, Filters: filters}
	}
	return clauses, nil
}

func decodeSource(obj map[string]any) (Source, error) {
	tag, err := strField(obj, "source")
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagRange:
		start, err := intField(obj, "start")
		if err != nil {
			return nil, err
		}
		stop, err := intField(obj, "stop")
		if err != nil {
			return nil, err
		}
		step, err := intField(obj, "step")
		if err != nil {
			return nil, err
		}
		if step == 0 {
			return nil, fmt.Errorf("decode IR: range step must not be zero")
		}
		return &RangeSource{Start: start, Stop: stop, Step: step}, nil
	case tagCollection:
		name, err := strField(obj, "name")
		if err != nil {
			return nil, err
		}
		return &CollectionSource{Name: name}, nil
	default:
		return nil, fmt.Errorf("decode IR: unknown source tag %q", tag)
	}
}

func decodeExprField(obj map[string]any, key string) (Expr, error) {
	eObj, ok := obj[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode IR: %s must be an object", key)
	}
	return decodeExpr(eObj)
}

func decodeExpr(obj map[string]any) (Expr, error) {
	tag, err := strField(obj, "expr")
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagInt:
		v, err := intField(obj, "value")
		if err != nil {
			return nil, err
		}
		return &IntLit{Value: v}, nil
	case tagBool:
		v, ok := obj["value"].(bool)
		if !ok {
			return nil, fmt.Errorf("decode IR: bool literal value must be a boolean")
		}
		return &BoolLit{Value: v}, nil
	case tagVar:
		name, err := strField(obj, "name")
		if err != nil {
			return nil, err
		}
		return &VarRef{Name: name}, nil
	case tagField:
		base, err := decodeExprField(obj, "base")
		if err != nil {
			return nil, err
		}
		field, err := strField(obj, "field")
		if err != nil {
			return nil, err
		}
		return &FieldAccess{Base: base, Field: field}, nil
	case tagUnary:
		opStr, err := strField(obj, "op")
		if err != nil {
			return nil, err
		}
		op := UnaryOp(opStr)
		if op != OpNeg && op != OpNot {
			return nil, fmt.Errorf("decode IR: unknown unary op %q", opStr)
		}
		operand, err := decodeExprField(obj, "operand")
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Operand: operand}, nil
	case tagBinary:
		opStr, err := strField(obj, "op")
		if err != nil {
			return nil, err
		}
		op := BinaryOp(opStr)
		if !op.Arithmetic() && !op.Comparison() && !op.Boolean() {
			return nil, fmt.Errorf("decode IR: unknown binary op %q", opStr)
		}
		left, err := decodeExprField(obj, "left")
		if err != nil {
			return nil, err
		}
		right, err := decodeExprField(obj, "right")
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: left, Right: right}, nil
	case tagCond:
		cond, err := decodeExprField(obj, "cond")
		if err != nil {
			return nil, err
		}
		then, err := decodeExprField(obj, "then")
		if err != nil {
			return nil, err
		}
		els, err := decodeExprField(obj, "else")
		if err != nil {
			return nil, err
		}
		return &Conditional{Cond: cond, Then: then, Else: els}, nil
	default:
		return nil, fmt.Errorf("decode IR: unknown expr tag %q", tag)
	}
}

func strField(obj map[string]any, key string) (string, error) {
	v, ok := obj[key].(string)
	if !ok {
		return "", fmt.Errorf("decode IR: %s must be a string", key)
	}
	return v, nil
}

func intField(obj map[string]any, key string) (int64, error) {
	num, ok := obj[key].(json.Number)
	if !ok {
		return 0, fmt.Errorf("decode IR: %s must be an integer", key)
	}
	s := num.String()
	if strings.ContainsAny(s, ".eE") {
		return 0, fmt.Errorf("decode IR: floats are forbidden: %s", s)
	}
	v, err := num.Int64()
	if err != nil {
		return 0, fmt.Errorf("decode IR: %s out of int64 range: %s", key, s)
	}
	return v, nil
}
