package tsgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/parser"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/schema"
	"github.com/roach88/polyglot/internal/typeinfo"
)

func parse(t *testing.T, src string) ir.Node {
	t.Helper()
	n, err := parser.Parse(src)
	require.NoError(t, err)
	return n
}

func renderSrc(t *testing.T, src string, req render.Request) *render.Artifact {
	t.Helper()
	art, err := render.Render("ts", parse(t, src), nil, req)
	require.NoError(t, err)
	return art
}

func TestBroadcast_AutoSelected(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{FuncName: "sumEvenSquares"})

	assert.Contains(t, art.Code, "export function sumEvenSquares(): number {")
	assert.Contains(t, art.Code, "return Array.from({ length: 9 }, (_, k) => 1 + k)")
	assert.Contains(t, art.Code, ".filter((i) => i % 2 === 0)")
	assert.Contains(t, art.Code, ".map((i) => i * i)")
	assert.Contains(t, art.Code, ".reduce((acc, v) => acc + v, 0);")
	assert.Contains(t, art.Notes, "auto-selected broadcast for single-clause arithmetic shape")
	assert.False(t, art.Degraded)
}

func TestBroadcast_Shapes(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		art := renderSrc(t, "[x + 1 for x in range(5)]", render.Request{})
		assert.Contains(t, art.Code, "Array.from({ length: 5 }, (_, k) => k)")
		assert.Contains(t, art.Code, ".map((x) => x + 1);")
	})

	t.Run("set", func(t *testing.T) {
		art := renderSrc(t, "{x % 3 for x in range(10)}", render.Request{})
		assert.Contains(t, art.Code, "const values = Array.from({ length: 10 }, (_, k) => k)")
		assert.Contains(t, art.Code, "return new Set(values);")
	})

	t.Run("max", func(t *testing.T) {
		art := renderSrc(t, "max(i*i for i in range(1,10))", render.Request{})
		assert.Contains(t, art.Code, ".reduce((acc, v) => Math.max(acc, v), Number.MIN_SAFE_INTEGER);")
	})

	t.Run("any", func(t *testing.T) {
		art := renderSrc(t, "any(i % 7 == 0 for i in range(1,100))", render.Request{})
		assert.Contains(t, art.Code, "export function compute(): boolean {")
		assert.Contains(t, art.Code, ".some((i) => i % 7 === 0);")
	})

	t.Run("stepped range", func(t *testing.T) {
		art := renderSrc(t, "[i for i in range(10, 0, -2)]", render.Request{})
		assert.Contains(t, art.Code, "Array.from({ length: 5 }, (_, k) => 10 + k * -2)")
	})
}

func TestLoops_Explicit(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{FuncName: "sumEvenSquares", Mode: "loops"})

	assert.Contains(t, art.Code, "let acc = 0;")
	assert.Contains(t, art.Code, "for (let i = 1; i < 10; i += 1) {")
	assert.Contains(t, art.Code, "if (!(i % 2 === 0)) {")
	assert.Contains(t, art.Code, "continue;")
	assert.Contains(t, art.Code, "acc += i * i;")
	assert.Contains(t, art.Code, "return acc;")
}

func TestLoops_Containers(t *testing.T) {
	t.Run("dict", func(t *testing.T) {
		art := renderSrc(t, "{i: i*i for i in range(1,10)}", render.Request{})
		assert.Contains(t, art.Code, "const out = new Map<number, number>();")
		assert.Contains(t, art.Code, "out.set(i, i * i);")
		assert.Contains(t, art.Code, "return out;")
	})

	t.Run("set", func(t *testing.T) {
		art := renderSrc(t, "{x % 3 for x in range(10)}", render.Request{Mode: "loops"})
		assert.Contains(t, art.Code, "const out = new Set<number>();")
		assert.Contains(t, art.Code, "out.add(x % 3);")
	})
}

// Empty-domain max/min return the same integer sentinels every other
// target uses, not JavaScript's infinities.
func TestLoops_MaxMinIdentity(t *testing.T) {
	art := renderSrc(t, "max(i for i in range(10))", render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "let acc = Number.MIN_SAFE_INTEGER;")
	assert.Contains(t, art.Code, "acc = Math.max(acc, i);")

	art = renderSrc(t, "min(i for i in range(10))", render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "let acc = Number.MAX_SAFE_INTEGER;")
	assert.NotContains(t, art.Code, "Infinity")
}

func TestLoops_TypedCollection(t *testing.T) {
	colls, err := schema.CompileString(`collections: {orders: {price: int, qty: int, active: bool}}`)
	require.NoError(t, err)

	n := parse(t, "sum(r.price * r.qty for r in orders if r.active)")
	info, err := typeinfo.Infer(n, typeinfo.Options{Schemas: colls})
	require.NoError(t, err)

	art, err := render.Render("ts", n, info, render.Request{FuncName: "revenue"})
	require.NoError(t, err)

	assert.Contains(t, art.Code, "interface OrderRow {")
	assert.Contains(t, art.Code, "price: number;")
	assert.Contains(t, art.Code, "active: boolean;")
	assert.Contains(t, art.Code, "export function revenue(orders: OrderRow[]): number {")
	assert.Contains(t, art.Code, "for (const r of orders) {")
	assert.Contains(t, art.Code, "if (!(r.active)) {")
	assert.Contains(t, art.Code, "acc += r.price * r.qty;")
}

func TestLoops_DynamicCollection(t *testing.T) {
	art := renderSrc(t, "sum(r.price for r in orders)", render.Request{})
	assert.Contains(t, art.Code, "orders: Record<string, number>[]")
	assert.Contains(t, art.Code, `acc += r["price"];`)
}

func TestParallel_Degrades(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,1001))",
		render.Request{Parallel: true, Mode: "loops"})

	assert.True(t, art.Degraded)
	assert.Contains(t, art.Notes, "parallel fallback -> sequential: backend has no parallel form for 'sum'")
	assert.Contains(t, art.Code, "for (let i = 1; i < 1001; i += 1) {")
}

func TestBroadcastMode_FallsBackForDicts(t *testing.T) {
	art := renderSrc(t, "{i: i*i for i in range(5)}",
		render.Request{Mode: "broadcast"})

	assert.True(t, art.Degraded)
	assert.Contains(t, art.Notes, "broadcast fallback -> loops: shape is not vectorizable")
	assert.Contains(t, art.Code, "out.set(i, i * i);")
}

func TestTruncatingDivision(t *testing.T) {
	art := renderSrc(t, "[x // 3 for x in range(10)]", render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "out.push(Math.trunc(x / 3));")
}

func TestConditionalElement(t *testing.T) {
	art := renderSrc(t, "[x if x > 0 else -x for x in range(-3,4)]",
		render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "out.push(x > 0 ? x : -x);")
}

func TestFlagsWarn(t *testing.T) {
	art := renderSrc(t, "sum(i for i in range(10))",
		render.Request{Unsafe: true, IntWidth: 32})
	require.Len(t, art.Warnings, 2)
	assert.Contains(t, art.Warnings[0], "unsafe flag ignored")
	assert.Contains(t, art.Warnings[1], "int width ignored")
}

func TestDeterministic(t *testing.T) {
	src := "sum(i*j for i in range(4) for j in range(4) if i != j)"
	first := renderSrc(t, src, render.Request{})
	second := renderSrc(t, src, render.Request{})
	assert.Equal(t, first.Code, second.Code)
}
