package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/pkg/parser"
)

func TestExtractTables(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "single table",
			sql:  "SELECT * FROM raw_users",
			want: []string{"raw_users"},
		},
		{
			name: "join keeps source order",
			sql:  "SELECT u.id, o.total FROM users u JOIN order_items o ON u.id = o.user_id",
			want: []string{"users", "order_items"},
		},
		{
			name: "repeated references are not deduplicated",
			sql:  "SELECT * FROM users a JOIN users b ON a.manager_id = b.id",
			want: []string{"users", "users"},
		},
		{
			name: "qualified names",
			sql:  "SELECT * FROM analytics.events e LEFT OUTER JOIN warehouse.main.sessions s USING (session_id)",
			want: []string{"analytics.events", "warehouse.main.sessions"},
		},
		{
			name: "comma join",
			sql:  "SELECT * FROM a, b, c WHERE a.id = b.id AND b.id = c.id",
			want: []string{"a", "b", "c"},
		},
		{
			name: "nested parenthesized joins",
			sql:  "SELECT * FROM (a JOIN (b JOIN c ON b.id = c.id) ON a.id = b.id) LEFT JOIN d ON d.id = a.id",
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "derived table",
			sql:  "SELECT x.n FROM (SELECT count(*) AS n FROM orders) AS x",
			want: []string{"orders"},
		},
		{
			name: "lateral subquery",
			sql:  "SELECT * FROM users u, LATERAL (SELECT * FROM orders o WHERE o.user_id = u.id LIMIT 3) recent",
			want: []string{"users", "orders"},
		},
		{
			name: "cte names are not tables",
			sql: `WITH active AS (SELECT * FROM users WHERE active),
			           totals AS (SELECT user_id, sum(total) AS total FROM orders GROUP BY user_id)
			      SELECT * FROM active JOIN totals ON active.id = totals.user_id`,
			want: []string{"users", "orders"},
		},
		{
			name: "cte referencing an earlier cte",
			sql:  "WITH a AS (SELECT * FROM src), b AS (SELECT * FROM a) SELECT * FROM b",
			want: []string{"src"},
		},
		{
			name: "non-recursive cte does not see itself",
			sql:  "WITH users AS (SELECT * FROM users) SELECT * FROM users",
			want: []string{"users"},
		},
		{
			name: "recursive cte",
			sql: `WITH RECURSIVE tree AS (
			        SELECT id, parent_id FROM categories WHERE parent_id IS NULL
			        UNION ALL
			        SELECT c.id, c.parent_id FROM categories c JOIN tree t ON c.parent_id = t.id)
			      SELECT * FROM tree`,
			want: []string{"categories", "categories"},
		},
		{
			name: "schema-qualified name shadowed by cte is still a table",
			sql:  "WITH users AS (SELECT 1) SELECT * FROM main.users",
			want: []string{"main.users"},
		},
		{
			name: "set operations",
			sql:  "SELECT id FROM a UNION SELECT id FROM b EXCEPT SELECT id FROM c",
			want: []string{"a", "b", "c"},
		},
		{
			name: "parenthesized set operands",
			sql:  "(SELECT id FROM a) UNION ALL (SELECT id FROM b) ORDER BY id",
			want: []string{"a", "b"},
		},
		{
			name: "subqueries in where",
			sql: `SELECT * FROM orders o
			      WHERE o.user_id IN (SELECT id FROM users)
			        AND EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id)
			        AND NOT EXISTS (SELECT 1 FROM refunds r WHERE r.order_id = o.id)`,
			want: []string{"orders", "users", "payments", "refunds"},
		},
		{
			name: "scalar subquery in select list comes first",
			sql:  "SELECT (SELECT max(ts) FROM events) AS latest, id FROM users",
			want: []string{"events", "users"},
		},
		{
			name: "table functions are not tables",
			sql:  "SELECT * FROM read_parquet('data/*.parquet') p JOIN users u ON p.uid = u.id",
			want: []string{"users"},
		},
		{
			name: "duckdb from-first",
			sql:  "FROM raw_users SELECT id, name",
			want: []string{"raw_users"},
		},
		{
			name: "values has no tables",
			sql:  "SELECT * FROM (VALUES (1, 'a'), (2, 'b')) AS t(id, name)",
			want: nil,
		},
		{
			name: "quoted identifiers",
			sql:  `SELECT "select" FROM "Order Items"`,
			want: []string{"Order Items"},
		},
		{
			name: "pivot",
			sql: `SELECT * FROM sales PIVOT (sum(amount) AS total FOR quarter IN ('Q1', 'Q2', ('Q3'))) AS p
			      JOIN regions r ON p.region = r.name`,
			want: []string{"sales", "regions"},
		},
		{
			name: "unpivot include nulls on a derived table",
			sql:  "SELECT * FROM (SELECT * FROM monthly) m UNPIVOT INCLUDE NULLS (sales FOR month IN (jan, feb, mar))",
			want: []string{"monthly"},
		},
		{
			name: "pivot as a plain alias",
			sql:  "SELECT pivot.id FROM events pivot",
			want: []string{"events"},
		},
		{
			name: "unquoted identifiers fold to lower case",
			sql:  `SELECT * FROM RAW_USERS u JOIN Analytics."Events" e ON u.id = e.user_id`,
			want: []string{"raw_users", "analytics.Events"},
		},
		{
			name: "trailing semicolon and comments",
			sql: `-- daily users
			      SELECT /* all */ * FROM users;`,
			want: []string{"users"},
		},
		{
			name: "no from clause",
			sql:  "SELECT 1 + 1 AS two",
			want: nil,
		},
		{
			name: "window functions and qualify",
			sql: `SELECT user_id, row_number() OVER (PARTITION BY user_id ORDER BY ts DESC
			                                         ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS rn
			      FROM events QUALIFY rn = 1`,
			want: []string{"events"},
		},
		{
			name: "duckdb expressions",
			sql: `SELECT * EXCLUDE (secret),
			             CAST(ts AS TIMESTAMP WITH TIME ZONE) AS ts_tz,
			             amount::DECIMAL(10, 2) AS amount,
			             list_transform(tags, x -> upper(x)) AS tags,
			             extract(year FROM ts) AS yr,
			             count(*) FILTER (WHERE status = 'paid') AS paid,
			             DATE '2024-01-01' + INTERVAL 1 DAY AS tomorrow,
			             CASE WHEN amount > 100 THEN 'big' ELSE 'small' END AS size
			      FROM payments
			      WHERE status NOT IN ('void') AND note ILIKE '%refund%' AND amount BETWEEN 1 AND 10
			      GROUP BY ALL
			      ORDER BY ALL`,
			want: []string{"payments"},
		},
		{
			name: "semi and asof joins",
			sql:  "SELECT * FROM trades t SEMI JOIN symbols s ON t.sym = s.sym ASOF JOIN quotes q ON t.ts >= q.ts",
			want: []string{"trades", "symbols", "quotes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.ExtractTables(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyze_NonQueryStatements(t *testing.T) {
	tests := []struct {
		sql     string
		keyword string
	}{
		{"INSERT INTO users SELECT * FROM raw_users", "INSERT"},
		{"create table x as select 1", "CREATE"},
		{"DELETE FROM users WHERE id = 1", "DELETE"},
		{"COPY users TO 'users.parquet'", "COPY"},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			deps, err := parser.Analyze(tt.sql)
			require.NoError(t, err)
			assert.Empty(t, deps.Tables)
			assert.Equal(t, tt.keyword, deps.NonQuery)

			tables, err := parser.ExtractTables(tt.sql)
			require.NoError(t, err)
			assert.Empty(t, tables)
		})
	}
}

func TestExtractTables_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantMsg string
	}{
		{"empty", "   ", "empty statement"},
		{"garbage", "SELEC * FROM users", "unexpected"},
		{"missing table", "SELECT * FROM", "table name"},
		{"unbalanced paren", "SELECT * FROM (SELECT 1", "expected )"},
		{"two statements", "SELECT 1; SELECT 2", "single statement"},
		{"dangling join", "SELECT * FROM a JOIN", "table name"},
		{"unterminated string", "SELECT 'abc FROM users", "unterminated string"},
		{"natural join with condition", "SELECT * FROM a NATURAL JOIN b ON a.id = b.id", "join condition"},
		{"trailing tokens", "SELECT * FROM users users2 users3", "end of statement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.ExtractTables(tt.sql)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestExtractTables_UnterminatedPivot(t *testing.T) {
	_, err := parser.ExtractTables("SELECT * FROM sales PIVOT (sum(amount) FOR quarter IN ('Q1')")
	var parseErr *parser.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Message, "expected )")
}

func TestParseError_Position(t *testing.T) {
	_, err := parser.Parse("SELECT *\nFROM users\nWHERE")

	var perr *parser.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Pos.Line)
}
