package csgen

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
	art, err := render.Render("cs", parse(t, src), nil, req)
	require.NoError(t, err)
	return art
}

func TestBroadcast_LinqChain(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{FuncName: "sum_even_squares"})

	assert.Contains(t, art.Code, "public static class SumEvenSquares")
	assert.Contains(t, art.Code, "public static long Execute()")
	assert.Contains(t, art.Code, "return Enumerable.Range(1, 9).Select(i => (long)i)")
	assert.Contains(t, art.Code, ".Where(i => i % 2 == 0)")
	assert.Contains(t, art.Code, ".Select(i => i * i)")
	assert.Contains(t, art.Code, ".Sum();")
	assert.False(t, art.Degraded)
}

func TestBroadcast_Shapes(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		art := renderSrc(t, "[x + 1 for x in range(5)]", render.Request{})
		assert.Contains(t, art.Code, ".ToList();")
	})

	t.Run("set", func(t *testing.T) {
		art := renderSrc(t, "{x % 3 for x in range(10)}", render.Request{})
		assert.Contains(t, art.Code, ".ToHashSet();")
	})

	t.Run("product seeds the aggregate", func(t *testing.T) {
		art := renderSrc(t, "prod(i for i in range(1,6))", render.Request{})
		assert.Contains(t, art.Code, ".Aggregate(1L, (acc, v) => acc * v);")
	})

	t.Run("max aggregates over the sentinel", func(t *testing.T) {
		art := renderSrc(t, "max(i*i for i in range(10))", render.Request{})
		assert.Contains(t, art.Code, ".Aggregate(long.MinValue, (acc, v) => Math.Max(acc, v));")
	})

	t.Run("any", func(t *testing.T) {
		art := renderSrc(t, "any(i % 7 == 0 for i in range(1,100))", render.Request{})
		assert.Contains(t, art.Code, "public static bool Execute()")
		assert.Contains(t, art.Code, ".Any(i => i % 7 == 0);")
	})

	t.Run("stepped range projects indices", func(t *testing.T) {
		art := renderSrc(t, "[i for i in range(10, 0, -2)]", render.Request{})
		assert.Contains(t, art.Code, "Enumerable.Range(0, 5).Select(k => (long)(10 + k * -2))")
	})
}

func TestLoops_Explicit(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{Mode: "loops"})

	assert.Contains(t, art.Code, "long acc = 0;")
	assert.Contains(t, art.Code, "for (long i = 1; i < 10; i += 1)")
	assert.Contains(t, art.Code, "if (!(i % 2 == 0))")
	assert.Contains(t, art.Code, "continue;")
	assert.Contains(t, art.Code, "acc += i * i;")
	assert.Contains(t, art.Code, "return acc;")
}

func TestLoops_Dict(t *testing.T) {
	art := renderSrc(t, "{i: i*i for i in range(1,10)}", render.Request{})
	assert.Contains(t, art.Code, "var result = new Dictionary<long, long>();")
	assert.Contains(t, art.Code, "result[i] = i * i;")
	assert.Contains(t, art.Code, "return result;")
}

// The container local must not be named "out"; that is a C# keyword and
// the generated class would not compile.
func TestLoops_ContainerLocalAvoidsKeyword(t *testing.T) {
	art := renderSrc(t, "[i*i for i in range(5)]", render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "var result = new List<long>();")
	assert.Contains(t, art.Code, "result.Add(i * i);")
	assert.Contains(t, art.Code, "return result;")
	assert.NotContains(t, art.Code, "var out")
}

func TestLoops_TypedCollection(t *testing.T) {
	colls, err := schema.CompileString(`collections: {orders: {price: int, qty: int, active: bool}}`)
	require.NoError(t, err)

	n := parse(t, "sum(r.price * r.qty for r in orders if r.active)")
	info, err := typeinfo.Infer(n, typeinfo.Options{Schemas: colls})
	require.NoError(t, err)

	art, err := render.Render("cs", n, info, render.Request{FuncName: "revenue"})
	require.NoError(t, err)

	assert.Contains(t, art.Code, "public sealed record OrderRow(bool Active, long Price, long Qty);")
	assert.Contains(t, art.Code, "public static long Execute(IReadOnlyList<OrderRow> orders)")
	assert.Contains(t, art.Code, "foreach (var r in orders)")
	assert.Contains(t, art.Code, "if (!(r.Active))")
	assert.Contains(t, art.Code, "acc += r.Price * r.Qty;")
}

func TestLoops_DynamicCollection(t *testing.T) {
	art := renderSrc(t, "sum(r.price for r in orders)", render.Request{})
	assert.Contains(t, art.Code, "IReadOnlyList<Dictionary<string, long>> orders")
	assert.Contains(t, art.Code, `acc += r["price"];`)
}

func TestParallel_Sum(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,1001))",
		render.Request{Parallel: true, Mode: "loops"})

	assert.Contains(t, art.Code, "using System.Threading.Tasks;")
	assert.Contains(t, art.Code, "long total = 1000;")
	assert.Contains(t, art.Code, "int workers = Environment.ProcessorCount;")
	assert.Contains(t, art.Code, "Parallel.For(0, workers, w =>")
	assert.Contains(t, art.Code, "partials[w] = acc;")
	assert.Contains(t, art.Code, "result += partials[w];")
	assert.Contains(t, art.Notes, "strategy: parallel loops, thread-local partials merged in partition order")
	assert.False(t, art.Degraded)
}

func TestParallel_ContainerDegrades(t *testing.T) {
	art := renderSrc(t, "[i*i for i in range(100)]",
		render.Request{Parallel: true, Mode: "loops"})

	assert.True(t, art.Degraded)
	assert.Contains(t, art.Notes, "parallel fallback -> sequential: backend has no parallel container construction")
	assert.NotContains(t, art.Code, "Parallel.For")
}

func TestParallel_CollectionOuterFallsBack(t *testing.T) {
	art := renderSrc(t, "sum(r.price for r in orders)",
		render.Request{Parallel: true, Mode: "loops"})

	assert.True(t, art.Degraded)
	assert.NotContains(t, art.Code, "Parallel.For")
}

func TestUnsafeUnchecked(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(10))",
		render.Request{Unsafe: true, Mode: "loops"})
	assert.Contains(t, art.Code, "unchecked")

	art = renderSrc(t, "sum(i*i for i in range(10))", render.Request{Mode: "loops"})
	assert.NotContains(t, art.Code, "unchecked")
}

func TestWidth32(t *testing.T) {
	art := renderSrc(t, "max(i for i in range(10))",
		render.Request{IntWidth: 32, Mode: "loops"})
	assert.Contains(t, art.Code, "int acc = int.MinValue;")
	assert.Contains(t, art.Code, "for (int i = 0; i < 10; i += 1)")
}

func TestConditionalElement(t *testing.T) {
	art := renderSrc(t, "[x if x > 0 else -x for x in range(-3,4)]",
		render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "result.Add(x > 0 ? x : -x);")
}

func TestDeterministic(t *testing.T) {
	src := "sum(i*j for i in range(4) for j in range(4) if i != j)"
	first := renderSrc(t, src, render.Request{})
	second := renderSrc(t, src, render.Request{})
	assert.Equal(t, first.Code, second.Code)
}
