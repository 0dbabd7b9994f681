package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exprSum = "sum(i*i for i in range(1,10) if i % 2 == 0)"

func TestRender_SingleTarget(t *testing.T) {
	out, err := execute(t, "render", "--target", "go", "--name", "sumEvenSquares", exprSum)
	require.NoError(t, err)
	assert.Contains(t, out, "func sumEvenSquares() int64 {")
	assert.Contains(t, out, "// strategy: loops (sequential accumulator)")
}

func TestRender_AllTargets(t *testing.T) {
	out, err := execute(t, "render", "--target", "all", exprSum)
	require.NoError(t, err)

	for _, target := range []string{"cs", "go", "julia", "rust", "sql", "ts"} {
		assert.Contains(t, out, "== "+target+" ==")
	}
	// Target-name order regardless of goroutine completion.
	assert.Less(t, indexOf(out, "== cs =="), indexOf(out, "== go =="))
	assert.Less(t, indexOf(out, "== sql =="), indexOf(out, "== ts =="))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestRender_JSONEnvelope(t *testing.T) {
	out, err := execute(t, "--format", "json", "render", "--target", "rust", exprSum)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   RenderedTarget `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "rust", resp.Data.Target)
	assert.Contains(t, resp.Data.Code, "pub fn compute() -> i64 {")
	assert.Contains(t, resp.Data.Notes, "strategy: loops (sequential accumulator)")
}

func TestRender_EmitIR(t *testing.T) {
	out, err := execute(t, "render", "--target", "go", "--emit-ir", exprSum)
	require.NoError(t, err)
	assert.Contains(t, out, "ir: {")
	assert.Contains(t, out, `"node":"reduction"`)
	assert.Contains(t, out, `"op":"sum"`)
}

func TestRender_OutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.rs")
	_, err := execute(t, "render", "--target", "rust", "--out", path, exprSum)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "pub fn compute() -> i64 {")
}

func TestRender_OutNeedsSingleTarget(t *testing.T) {
	_, err := execute(t, "render", "--target", "all", "--out", "x.txt", exprSum)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRender_ExpressionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expr.txt")
	require.NoError(t, os.WriteFile(path, []byte(exprSum), 0o644))

	out, err := execute(t, "render", "--target", "go", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "func compute() int64 {")
}

func TestRender_SchemaTypedCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path,
		[]byte("collections: {orders: {price: int, qty: int, active: bool}}"), 0o644))

	out, err := execute(t, "render", "--target", "rust", "--schema", path,
		"sum(r.price * r.qty for r in orders if r.active)")
	require.NoError(t, err)
	assert.Contains(t, out, "pub struct OrderRow {")
	assert.Contains(t, out, "orders: &[OrderRow]")
}

func TestRender_WarningsPrinted(t *testing.T) {
	out, err := execute(t, "render", "--target", "rust", "--unsafe", exprSum)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: rust: unsafe hints are not emitted; flag ignored")
}

func TestRender_RejectionExitCode(t *testing.T) {
	out, err := execute(t, "render", "--target", "go", "sum(f(i) for i in range(3))")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "UNSUPPORTED_CONSTRUCT")
}

func TestRender_BadFlagExitCodes(t *testing.T) {
	_, err := execute(t, "render", "--target", "cobol", exprSum)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "render", "--target", "go", "--mode", "vectorized", exprSum)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "render", "--target", "sql", "--dialect", "mysql", exprSum)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRender_StrictTypesFatalAmbiguity(t *testing.T) {
	out, err := execute(t, "render", "--target", "go", "--strict-types",
		"sum(x + y for x in range(3))")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "TYPE_AMBIGUOUS")
}
