package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/parser"
)

func parse(t *testing.T, src string) ir.Node {
	t.Helper()
	n, err := parser.Parse(src)
	require.NoError(t, err)
	return n
}

func fullCaps() Capabilities {
	return Capabilities{
		Broadcast: true,
		ParallelOps: map[ir.ReduceOp]bool{
			ir.ReduceSum:     true,
			ir.ReduceProduct: true,
			ir.ReduceMax:     true,
			ir.ReduceMin:     true,
		},
		ParallelContainers: true,
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"auto", "loops", "broadcast"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}

	_, err := ParseMode("vectorized")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestSelect_LoopsDefault(t *testing.T) {
	n := parse(t, "{i: i*i for i in range(10)}")

	d := Select(n, ModeAuto, false, fullCaps())

	assert.Equal(t, Loops, d.Strategy)
	assert.False(t, d.Degraded)
	require.NotEmpty(t, d.Notes)
	assert.Equal(t, "strategy: loops (sequential accumulator)", d.Notes[0])
}

func TestSelect_AutoBroadcast(t *testing.T) {
	n := parse(t, "sum(i*i for i in range(1,10) if i % 2 == 0)")

	d := Select(n, ModeAuto, false, fullCaps())

	assert.Equal(t, Broadcast, d.Strategy)
	assert.False(t, d.Degraded)
	assert.Equal(t, "strategy: broadcast (vectorized expression)", d.Notes[0])
}

func TestSelect_ParallelUpgrade(t *testing.T) {
	n := parse(t, "sum(i*i for i in range(1,1000))")

	d := Select(n, ModeAuto, true, fullCaps())

	assert.Equal(t, ParallelPartitioned, d.Strategy)
	assert.False(t, d.Degraded)
	assert.Contains(t, d.Notes, "strategy: parallel loops, thread-local partials merged in partition order")
}

func TestSelect_ShortCircuitNeverParallel(t *testing.T) {
	testCases := []struct {
		src      string
		wantNote string
	}{
		{"any(x > 5 for x in range(10))", "parallel fallback -> sequential: short-circuit operator 'any'"},
		{"all(x >= 0 for x in range(10))", "parallel fallback -> sequential: short-circuit operator 'all'"},
	}

	for _, tc := range testCases {
		n := parse(t, tc.src)
		d := Select(n, ModeLoops, true, fullCaps())

		assert.Equal(t, Loops, d.Strategy, tc.src)
		assert.True(t, d.Degraded, tc.src)
		assert.Contains(t, d.Notes, tc.wantNote)
	}
}

func TestSelect_ParallelCapabilityMissing(t *testing.T) {
	n := parse(t, "prod(i for i in range(1,10))")
	caps := fullCaps()
	caps.ParallelOps = map[ir.ReduceOp]bool{ir.ReduceSum: true}

	d := Select(n, ModeLoops, true, caps)

	assert.Equal(t, Loops, d.Strategy)
	assert.True(t, d.Degraded)
	assert.Contains(t, d.Notes, "parallel fallback -> sequential: backend has no parallel form for 'prod'")
}

func TestSelect_ParallelContainers(t *testing.T) {
	n := parse(t, "{i: i*i for i in range(100)}")

	d := Select(n, ModeLoops, true, fullCaps())
	assert.Equal(t, ParallelPartitioned, d.Strategy)
	assert.Contains(t, d.Notes, "strategy: parallel loops, per-partition shards merged in partition order")

	caps := fullCaps()
	caps.ParallelContainers = false
	d = Select(n, ModeLoops, true, caps)
	assert.Equal(t, Loops, d.Strategy)
	assert.True(t, d.Degraded)
	assert.Contains(t, d.Notes, "parallel fallback -> sequential: backend has no parallel container construction")
}

func TestSelect_ExplicitBroadcastDowngrades(t *testing.T) {
	t.Run("ineligible shape", func(t *testing.T) {
		n := parse(t, "[i*j for i in range(3) for j in range(3)]")
		d := Select(n, ModeBroadcast, false, fullCaps())

		assert.Equal(t, Loops, d.Strategy)
		assert.True(t, d.Degraded)
		assert.Contains(t, d.Notes, "broadcast fallback -> loops: shape is not vectorizable")
	})

	t.Run("missing capability", func(t *testing.T) {
		n := parse(t, "[i*i for i in range(3)]")
		caps := fullCaps()
		caps.Broadcast = false
		d := Select(n, ModeBroadcast, false, caps)

		assert.Equal(t, Loops, d.Strategy)
		assert.True(t, d.Degraded)
		assert.Contains(t, d.Notes, "broadcast fallback -> loops: backend has no vectorized form")
	})
}

func TestSelect_ExplicitLoopsNeverUpgradesToBroadcast(t *testing.T) {
	n := parse(t, "[i*i for i in range(3)]")
	d := Select(n, ModeLoops, false, fullCaps())

	assert.Equal(t, Loops, d.Strategy)
	assert.False(t, d.Degraded)
}

func TestSelect_ParallelBeatsBroadcast(t *testing.T) {
	n := parse(t, "sum(i for i in range(1000))")
	d := Select(n, ModeAuto, true, fullCaps())
	assert.Equal(t, ParallelPartitioned, d.Strategy)
	assert.False(t, d.Degraded)
}

func TestBroadcastEligible(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want bool
	}{
		{"arithmetic list over range", "[i*i+1 for i in range(10)]", true},
		{"comparison filter", "[i for i in range(10) if i % 2 == 0]", true},
		{"reduction", "sum(i for i in range(10))", true},
		{"set", "{i*i for i in range(10)}", true},
		{"negation", "[-i for i in range(10)]", true},
		{"dict excluded", "{i: i for i in range(10)}", false},
		{"two clauses", "[i*j for i in range(3) for j in range(3)]", false},
		{"collection source", "[r.price for r in orders]", false},
		{"conditional element", "[i if i > 0 else -i for i in range(10)]", false},
		{"boolean combinator filter", "[i for i in range(10) if i > 1 and i < 8]", false},
		{"logical not filter", "[i for i in range(10) if not i == 3]", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BroadcastEligible(parse(t, tc.src)))
		})
	}
}
