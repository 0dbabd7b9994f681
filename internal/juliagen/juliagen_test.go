package juliagen

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
	art, err := render.Render("julia", parse(t, src), nil, req)
	require.NoError(t, err)
	return art
}

func TestBroadcast_AutoSelected(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{FuncName: "sum_even_squares"})

	assert.Contains(t, art.Code, "function sum_even_squares()")
	assert.Contains(t, art.Code, "i = 1:9")
	assert.Contains(t, art.Code, "i = i[i .% 2 .== 0]")
	assert.Contains(t, art.Code, "return sum(i .* i; init = Int64(0))")
	assert.Contains(t, art.Notes, "auto-selected broadcast for single-clause arithmetic shape")
	assert.False(t, art.Degraded)
}

func TestBroadcast_Shapes(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		art := renderSrc(t, "[x + 1 for x in range(5)]", render.Request{})
		assert.Contains(t, art.Code, "x = 0:4")
		assert.Contains(t, art.Code, "return collect(x .+ 1)")
	})

	t.Run("set", func(t *testing.T) {
		art := renderSrc(t, "{x % 3 for x in range(10)}", render.Request{})
		assert.Contains(t, art.Code, "return Set(x .% 3)")
	})

	t.Run("max", func(t *testing.T) {
		art := renderSrc(t, "max(i*i for i in range(10))", render.Request{})
		assert.Contains(t, art.Code, "return reduce(max, i .* i; init = typemin(Int64))")
	})

	t.Run("any", func(t *testing.T) {
		art := renderSrc(t, "any(i % 7 == 0 for i in range(1,100))", render.Request{})
		assert.Contains(t, art.Code, "return any(i .% 7 .== 0)")
	})

	t.Run("stepped range", func(t *testing.T) {
		art := renderSrc(t, "[i for i in range(10, 0, -2)]", render.Request{})
		assert.Contains(t, art.Code, "i = 10:-2:1")
	})

	t.Run("floor division", func(t *testing.T) {
		art := renderSrc(t, "[x // 3 for x in range(10)]", render.Request{})
		assert.Contains(t, art.Code, "return collect(div.(x, 3))")
	})
}

func TestLoops_Explicit(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{Mode: "loops"})

	assert.Contains(t, art.Code, "acc = Int64(0)")
	assert.Contains(t, art.Code, "for i in 1:9")
	assert.Contains(t, art.Code, "if !(i % 2 == 0)")
	assert.Contains(t, art.Code, "continue")
	assert.Contains(t, art.Code, "acc += i * i")
	assert.Contains(t, art.Code, "return acc")
}

func TestLoops_Containers(t *testing.T) {
	t.Run("dict", func(t *testing.T) {
		art := renderSrc(t, "{i: i*i for i in range(1,10)}", render.Request{})
		assert.Contains(t, art.Code, "out = Dict{Int64, Int64}()")
		assert.Contains(t, art.Code, "out[i] = i * i")
		assert.Contains(t, art.Code, "return out")
	})

	t.Run("set", func(t *testing.T) {
		art := renderSrc(t, "{x % 3 for x in range(10)}", render.Request{Mode: "loops"})
		assert.Contains(t, art.Code, "out = Set{Int64}()")
		assert.Contains(t, art.Code, "push!(out, x % 3)")
	})
}

func TestLoops_MaxMinIdentity(t *testing.T) {
	art := renderSrc(t, "max(i for i in range(10))", render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "acc = typemin(Int64)")
	assert.Contains(t, art.Code, "acc = max(acc, i)")

	art = renderSrc(t, "min(i for i in range(10))", render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "acc = typemax(Int64)")
}

func TestLoops_TypedCollection(t *testing.T) {
	colls, err := schema.CompileString(`collections: {orders: {price: int, qty: int, active: bool}}`)
	require.NoError(t, err)

	n := parse(t, "sum(r.price * r.qty for r in orders if r.active)")
	info, err := typeinfo.Infer(n, typeinfo.Options{Schemas: colls})
	require.NoError(t, err)

	art, err := render.Render("julia", n, info, render.Request{FuncName: "revenue"})
	require.NoError(t, err)

	assert.Contains(t, art.Code, "struct OrderRow")
	assert.Contains(t, art.Code, "price::Int64")
	assert.Contains(t, art.Code, "active::Bool")
	assert.Contains(t, art.Code, "function revenue(orders::Vector{OrderRow})")
	assert.Contains(t, art.Code, "for r in orders")
	assert.Contains(t, art.Code, "if !(r.active)")
	assert.Contains(t, art.Code, "acc += r.price * r.qty")
}

func TestLoops_DynamicCollection(t *testing.T) {
	art := renderSrc(t, "sum(r.price for r in orders)", render.Request{})
	assert.Contains(t, art.Code, "orders::Vector{Dict{String, Int64}}")
	assert.Contains(t, art.Code, `acc += r["price"]`)
}

func TestParallel_Sum(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,1001))",
		render.Request{Parallel: true, Mode: "loops"})

	assert.Contains(t, art.Code, "total = Int64(1000)")
	assert.Contains(t, art.Code, "workers = max(min(Threads.nthreads(), Int(total)), 1)")
	assert.Contains(t, art.Code, "partials = fill(Int64(0), workers)")
	assert.Contains(t, art.Code, "Threads.@threads for w in 1:workers")
	assert.Contains(t, art.Code, "partials[w] = acc")
	assert.Contains(t, art.Code, "result += partial")
	assert.Contains(t, art.Notes, "strategy: parallel loops, thread-local partials merged in partition order")
	assert.False(t, art.Degraded)
}

func TestParallel_DictShards(t *testing.T) {
	art := renderSrc(t, "{i % 5: i for i in range(100)}",
		render.Request{Parallel: true, Mode: "loops"})

	assert.Contains(t, art.Code, "shards = [Dict{Int64, Int64}() for _ in 1:workers]")
	assert.Contains(t, art.Code, "shards[w] = shard")
	assert.Contains(t, art.Code, "merge!(out, shard)")
	assert.Contains(t, art.Notes, "strategy: parallel loops, per-partition shards merged in partition order")
}

func TestParallel_ListShardsConcatInOrder(t *testing.T) {
	art := renderSrc(t, "[i*i for i in range(100)]",
		render.Request{Parallel: true, Mode: "loops"})
	assert.Contains(t, art.Code, "append!(out, shard)")
}

func TestParallel_CollectionOuterFallsBack(t *testing.T) {
	art := renderSrc(t, "sum(r.price for r in orders)",
		render.Request{Parallel: true, Mode: "loops"})

	assert.True(t, art.Degraded)
	assert.NotContains(t, art.Code, "Threads.@threads")
}

func TestUnsafeSimd(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(10))",
		render.Request{Unsafe: true, Mode: "loops"})
	assert.Contains(t, art.Code, "@inbounds @simd for i in 0:9")

	// A filter branches in the loop body, so the hint stays off.
	art = renderSrc(t, "sum(i*i for i in range(10) if i % 2 == 0)",
		render.Request{Unsafe: true, Mode: "loops"})
	assert.NotContains(t, art.Code, "@simd")
}

func TestWidth32(t *testing.T) {
	art := renderSrc(t, "max(i for i in range(10))",
		render.Request{IntWidth: 32, Mode: "loops"})
	assert.Contains(t, art.Code, "acc = typemin(Int32)")
}

func TestConditionalElement(t *testing.T) {
	art := renderSrc(t, "[x if x > 0 else -x for x in range(-3,4)]",
		render.Request{Mode: "loops"})
	assert.Contains(t, art.Code, "push!(out, x > 0 ? x : -x)")
}

func TestDeterministic(t *testing.T) {
	src := "sum(i*j for i in range(4) for j in range(4) if i != j)"
	first := renderSrc(t, src, render.Request{})
	second := renderSrc(t, src, render.Request{})
	assert.Equal(t, first.Code, second.Code)
}
