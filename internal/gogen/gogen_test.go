package gogen

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
	art, err := render.Render("go", parse(t, src), nil, req)
	require.NoError(t, err)
	return art
}

func TestLoops_SumEvenSquares(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{FuncName: "sumEvenSquares"})

	assert.Contains(t, art.Code, "func sumEvenSquares() int64 {")
	assert.Contains(t, art.Code, "acc := int64(0)")
	assert.Contains(t, art.Code, "for i := int64(1); i < 10; i++ {")
	assert.Contains(t, art.Code, "if !(i % 2 == 0) {")
	assert.Contains(t, art.Code, "acc += i * i")
	assert.Contains(t, art.Code, "return acc")
}

func TestLoops_Containers(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		art := renderSrc(t, "[x + 1 for x in range(5)]", render.Request{})
		assert.Contains(t, art.Code, "out := make([]int64, 0)")
		assert.Contains(t, art.Code, "out = append(out, x + 1)")
	})

	t.Run("set", func(t *testing.T) {
		art := renderSrc(t, "{x % 3 for x in range(10)}", render.Request{})
		assert.Contains(t, art.Code, "out := make(map[int64]struct{})")
		assert.Contains(t, art.Code, "out[x % 3] = struct{}{}")
	})

	t.Run("dict", func(t *testing.T) {
		art := renderSrc(t, "{i: i*i for i in range(1,10)}", render.Request{})
		assert.Contains(t, art.Code, "out := make(map[int64]int64)")
		assert.Contains(t, art.Code, "out[i] = i * i")
	})
}

func TestLoops_MaxSentinel(t *testing.T) {
	art := renderSrc(t, "max(i for i in range(10))", render.Request{})
	assert.Contains(t, art.Code, `import "math"`)
	assert.Contains(t, art.Code, "acc := int64(math.MinInt64)")
	assert.Contains(t, art.Code, "if v := i; v > acc {")
}

func TestLoops_NegativeStep(t *testing.T) {
	art := renderSrc(t, "[i for i in range(10, 0, -2)]", render.Request{})
	assert.Contains(t, art.Code, "for i := int64(10); i > 0; i -= 2 {")
}

func TestLoops_TypedCollection(t *testing.T) {
	colls, err := schema.CompileString(`collections: {orders: {price: int, qty: int, active: bool}}`)
	require.NoError(t, err)

	n := parse(t, "sum(r.price * r.qty for r in orders if r.active)")
	info, err := typeinfo.Infer(n, typeinfo.Options{Schemas: colls})
	require.NoError(t, err)

	art, err := render.Render("go", n, info, render.Request{FuncName: "revenue"})
	require.NoError(t, err)

	assert.Contains(t, art.Code, "type OrderRow struct {")
	assert.Contains(t, art.Code, "Price int64")
	assert.Contains(t, art.Code, "Active bool")
	assert.Contains(t, art.Code, "func revenue(orders []OrderRow) int64 {")
	assert.Contains(t, art.Code, "for _, r := range orders {")
	assert.Contains(t, art.Code, "if !(r.Active) {")
	assert.Contains(t, art.Code, "acc += r.Price * r.Qty")
}

func TestLoops_DynamicCollection(t *testing.T) {
	art := renderSrc(t, "sum(r.price for r in orders)", render.Request{})
	assert.Contains(t, art.Code, "orders []map[string]int64")
	assert.Contains(t, art.Code, `acc += r["price"]`)
}

func TestParallel_Sum(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,1001))",
		render.Request{Parallel: true, Mode: "loops"})

	assert.Contains(t, art.Code, `"runtime"`)
	assert.Contains(t, art.Code, `"sync"`)
	assert.Contains(t, art.Code, "total := int64(1000)")
	assert.Contains(t, art.Code, "partials := make([]int64, workers)")
	assert.Contains(t, art.Code, "partials[w] = acc")
	assert.Contains(t, art.Code, "wg.Wait()")
	assert.Contains(t, art.Code, "for _, partial := range partials {")
	assert.Contains(t, art.Code, "result += partial")
	assert.False(t, art.Degraded)
}

func TestParallel_DictShards(t *testing.T) {
	art := renderSrc(t, "{i % 5: i for i in range(100)}",
		render.Request{Parallel: true, Mode: "loops"})

	assert.Contains(t, art.Code, "shards := make([]map[int64]int64, workers)")
	assert.Contains(t, art.Code, "shards[w] = shard")
	assert.Contains(t, art.Code, "for _, shard := range shards {")
	assert.Contains(t, art.Code, "out[k] = v")
	assert.Contains(t, art.Notes, "strategy: parallel loops, per-partition shards merged in partition order")
}

func TestParallel_ListShardsConcatInOrder(t *testing.T) {
	art := renderSrc(t, "[i*i for i in range(100)]",
		render.Request{Parallel: true, Mode: "loops"})
	assert.Contains(t, art.Code, "out = append(out, shard...)")
}

func TestParallel_CollectionOuterFallsBack(t *testing.T) {
	art := renderSrc(t, "sum(r.price for r in orders)",
		render.Request{Parallel: true, Mode: "loops"})

	assert.True(t, art.Degraded)
	assert.NotContains(t, art.Code, "sync.WaitGroup")
}

func TestConditionalClosure(t *testing.T) {
	art := renderSrc(t, "[x if x > 0 else -x for x in range(-3,4)]", render.Request{})
	assert.Contains(t, art.Code, "func() int64 { if x > 0 { return x }; return -x }()")
}

func TestWidth32(t *testing.T) {
	art := renderSrc(t, "max(i for i in range(10))", render.Request{IntWidth: 32})
	assert.Contains(t, art.Code, "acc := int32(math.MinInt32)")
}

func TestUnsafeIgnored(t *testing.T) {
	art := renderSrc(t, "sum(i for i in range(10))", render.Request{Unsafe: true})
	require.NotEmpty(t, art.Warnings)
	assert.Contains(t, art.Warnings[0], "unsafe flag ignored")
}

func TestDeterministic(t *testing.T) {
	src := "sum(i*j for i in range(4) for j in range(4) if i != j)"
	first := renderSrc(t, src, render.Request{})
	second := renderSrc(t, src, render.Request{})
	assert.Equal(t, first.Code, second.Code)
}
