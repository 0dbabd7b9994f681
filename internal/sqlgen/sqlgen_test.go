package sqlgen

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/parser"
	"github.com/roach88/polyglot/internal/render"
)

func parse(t *testing.T, src string) ir.Node {
	t.Helper()
	n, err := parser.Parse(src)
	require.NoError(t, err)
	return n
}

func renderSrc(t *testing.T, src string, req render.Request) *render.Artifact {
	t.Helper()
	art, err := render.Render("sql", parse(t, src), nil, req)
	require.NoError(t, err)
	return art
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func queryInt(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var v int64
	require.NoError(t, db.QueryRow(query).Scan(&v))
	return v
}

func TestSQLite_SumEvenSquares(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)", render.Request{})

	assert.Contains(t, art.Code, "WITH RECURSIVE i_range(i) AS (")
	assert.Contains(t, art.Code, "SELECT 1 WHERE 1 < 10")
	assert.Contains(t, art.Code, "SELECT i + 1 FROM i_range WHERE i + 1 < 10")
	assert.Contains(t, art.Code, "SELECT COALESCE(SUM(i * i), 0) AS result")
	assert.Contains(t, art.Code, "FROM i_range")
	assert.Contains(t, art.Code, "WHERE i % 2 = 0")

	assert.Equal(t, int64(120), queryInt(t, openDB(t), art.Code))
}

func TestSQLite_AnyExists(t *testing.T) {
	art := renderSrc(t, "any(i % 7 == 0 for i in range(1,100))", render.Request{})

	assert.Contains(t, art.Code, "SELECT EXISTS(")
	assert.Contains(t, art.Code, ") AS result")
	assert.Equal(t, int64(1), queryInt(t, openDB(t), art.Code))
}

func TestSQLite_AllNotExists(t *testing.T) {
	art := renderSrc(t, "all(i > 0 for i in range(1,10))", render.Request{})
	assert.Contains(t, art.Code, "SELECT NOT EXISTS(")
	assert.Contains(t, art.Code, "NOT (i > 0)")
	assert.Equal(t, int64(1), queryInt(t, openDB(t), art.Code))

	art = renderSrc(t, "all(i > 5 for i in range(1,10))", render.Request{})
	assert.Equal(t, int64(0), queryInt(t, openDB(t), art.Code))
}

func TestSQLite_EmptyDomainIdentities(t *testing.T) {
	art := renderSrc(t, "sum(i for i in range(0))", render.Request{})
	assert.Equal(t, int64(0), queryInt(t, openDB(t), art.Code))

	art = renderSrc(t, "max(i for i in range(0))", render.Request{})
	assert.Equal(t, int64(-9223372036854775808), queryInt(t, openDB(t), art.Code))

	art = renderSrc(t, "all(i > 0 for i in range(0))", render.Request{})
	assert.Equal(t, int64(1), queryInt(t, openDB(t), art.Code))
}

func TestSQLite_NegativeStepRange(t *testing.T) {
	art := renderSrc(t, "sum(i for i in range(10, 0, -2))", render.Request{})
	assert.Contains(t, art.Code, "SELECT 10 WHERE 10 > 0")
	assert.Contains(t, art.Code, "SELECT i - 2 FROM i_range WHERE i - 2 > 0")
	assert.Equal(t, int64(30), queryInt(t, openDB(t), art.Code))
}

func TestSQLite_JoinPushdown(t *testing.T) {
	art := renderSrc(t, "sum(i*j for i in range(1,4) for j in range(1,4) if i != j)",
		render.Request{})

	assert.Contains(t, art.Code, ", j_range(j) AS (")
	assert.Contains(t, art.Code, "JOIN j_range ON i <> j")
	assert.Equal(t, int64(22), queryInt(t, openDB(t), art.Code))
}

func TestSQLite_CollectionTable(t *testing.T) {
	art := renderSrc(t, "sum(r.price * r.qty for r in orders if r.active)", render.Request{})
	assert.Contains(t, art.Code, "FROM orders AS r")
	assert.Contains(t, art.Code, "WHERE r.active")

	db := openDB(t)
	_, err := db.Exec(`CREATE TABLE orders (price INTEGER, qty INTEGER, active INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders VALUES (10, 2, 1), (50, 1, 0), (25, 4, 1)`)
	require.NoError(t, err)

	assert.Equal(t, int64(120), queryInt(t, db, art.Code))
}

func TestSQLite_DictRows(t *testing.T) {
	art := renderSrc(t, "{i: i*i for i in range(1,10) if i % 2 == 0}", render.Request{})

	assert.Contains(t, art.Code, `SELECT i AS "key", i * i AS "value"`)
	assert.Contains(t, art.Notes, "duplicate keys resolve in the consuming engine; rows carry no insertion order")

	rows, err := openDB(t).Query(art.Code)
	require.NoError(t, err)
	defer rows.Close()

	got := map[int64]int64{}
	for rows.Next() {
		var k, v int64
		require.NoError(t, rows.Scan(&k, &v))
		got[k] = v
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[int64]int64{2: 4, 4: 16, 6: 36, 8: 64}, got)
}

func TestSQLite_SetDistinct(t *testing.T) {
	art := renderSrc(t, "{i % 3 for i in range(10)}", render.Request{})
	assert.Contains(t, art.Code, "SELECT DISTINCT i % 3 AS value")
}

func TestPostgres_Dialect(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,10) if i % 2 == 0)",
		render.Request{Dialect: render.DialectPostgres})
	assert.Contains(t, art.Code, "FROM generate_series(1, 9) AS i(i)")
	assert.NotContains(t, art.Code, "WITH RECURSIVE")

	art = renderSrc(t, "any(i % 7 == 0 for i in range(1,100))",
		render.Request{Dialect: render.DialectPostgres})
	assert.Contains(t, art.Code, "SELECT COALESCE(bool_or(i % 7 = 0), FALSE) AS result")

	art = renderSrc(t, "all(i > 0 for i in range(0))",
		render.Request{Dialect: render.DialectPostgres})
	assert.Contains(t, art.Code, "SELECT COALESCE(bool_and(i > 0), TRUE) AS result")

	art = renderSrc(t, "[i for i in range(10, 0, -2)]",
		render.Request{Dialect: render.DialectPostgres})
	assert.Contains(t, art.Code, "generate_series(10, 1, -2)")
}

func TestProductUnsupported(t *testing.T) {
	_, err := render.Render("sql", parse(t, "prod(i for i in range(1,6))"), nil, render.Request{})
	require.Error(t, err)
	assert.True(t, render.IsBackendError(err))
	assert.Contains(t, err.Error(), "product has no portable aggregate")
}

func TestParallelDelegated(t *testing.T) {
	art := renderSrc(t, "sum(i*i for i in range(1,1001))",
		render.Request{Parallel: true})

	assert.False(t, art.Degraded)
	assert.Contains(t, art.Notes, "parallel request delegated to the query engine")
	assert.Equal(t, int64(333833500), queryInt(t, openDB(t), art.Code))
}

func TestUnknownDialect(t *testing.T) {
	_, err := render.Render("sql", parse(t, "sum(i for i in range(5))"), nil,
		render.Request{Dialect: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dialect")
}

func TestConditionalCase(t *testing.T) {
	art := renderSrc(t, "sum(i if i > 5 else 0 for i in range(10))", render.Request{})
	assert.Contains(t, art.Code, "CASE WHEN i > 5 THEN i ELSE 0 END")
	assert.Equal(t, int64(30), queryInt(t, openDB(t), art.Code))
}

func TestDeterministic(t *testing.T) {
	src := "{i: i*i for i in range(1,10)}"
	first := renderSrc(t, src, render.Request{})
	second := renderSrc(t, src, render.Request{})
	assert.Equal(t, first.Code, second.Code)
}
