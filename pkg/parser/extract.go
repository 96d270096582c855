package parser

import (
	"errors"
	"strings"
)

// Dependencies is the result of analysing a model's SQL.
type Dependencies struct {
	// Tables lists every referenced table in source order. Repeated
	// references are kept.
	Tables []string
	// NonQuery holds the leading keyword (e.g. "INSERT") when the SQL is a
	// statement other than a query. Tables is empty in that case.
	NonQuery string
}

// Analyze parses a single statement and collects the tables it reads.
// Names bound by WITH are not reported. CTE bodies, derived tables, set
// operations, joins and subqueries anywhere in the statement contribute
// their tables. Statements that are not queries yield no tables and no error.
func Analyze(sql string) (*Dependencies, error) {
	stmt, err := Parse(sql)
	if err != nil {
		var nq *NotQueryError
		if errors.As(err, &nq) {
			return &Dependencies{NonQuery: nq.Keyword}, nil
		}
		return nil, err
	}

	x := &extractor{}
	x.visitStmt(stmt, nil)
	return &Dependencies{Tables: x.tables}, nil
}

// ExtractTables returns the ordered, non-deduplicated list of tables a query reads.
func ExtractTables(sql string) ([]string, error) {
	deps, err := Analyze(sql)
	if err != nil {
		return nil, err
	}
	return deps.Tables, nil
}

// cteScope is a linked list of CTE names visible at a point in the query.
type cteScope struct {
	names  map[string]bool
	parent *cteScope
}

func (s *cteScope) has(name string) bool {
	for ; s != nil; s = s.parent {
		if s.names[strings.ToLower(name)] {
			return true
		}
	}
	return false
}

type extractor struct {
	tables []string
}

func (x *extractor) visitStmt(stmt *SelectStmt, scope *cteScope) {
	if stmt == nil {
		return
	}

	if stmt.With != nil {
		local := &cteScope{names: make(map[string]bool), parent: scope}
		if stmt.With.Recursive {
			for _, cte := range stmt.With.CTEs {
				local.names[strings.ToLower(cte.Name)] = true
			}
		}
		for _, cte := range stmt.With.CTEs {
			// A non-recursive CTE only sees the CTEs defined before it.
			x.visitStmt(cte.Select, local)
			local.names[strings.ToLower(cte.Name)] = true
		}
		scope = local
	}

	x.visitBody(stmt.Body, scope)
}

func (x *extractor) visitBody(body *SelectBody, scope *cteScope) {
	for ; body != nil; body = body.Right {
		x.visitStmt(body.Nested, scope)
		x.visitCore(body.Left, scope)
	}
}

func (x *extractor) visitCore(core *SelectCore, scope *cteScope) {
	if core == nil {
		return
	}

	for _, item := range core.Columns {
		x.visitExpr(item.Expr, scope)
	}
	for _, row := range core.Values {
		x.visitExprs(row, scope)
	}
	if core.From != nil {
		x.visitFrom(core.From, scope)
	}
	x.visitExpr(core.Where, scope)
	x.visitExprs(core.GroupBy, scope)
	x.visitExpr(core.Having, scope)
	for _, w := range core.Windows {
		x.visitWindow(w, scope)
	}
	x.visitExpr(core.Qualify, scope)
	x.visitOrderBy(core.OrderBy, scope)
	x.visitExpr(core.Limit, scope)
	x.visitExpr(core.Offset, scope)
}

func (x *extractor) visitFrom(from *FromClause, scope *cteScope) {
	x.visitTableRef(from.Source, scope)
	for _, join := range from.Joins {
		x.visitTableRef(join.Right, scope)
		x.visitExpr(join.Condition, scope)
	}
}

func (x *extractor) visitTableRef(ref TableRef, scope *cteScope) {
	switch t := ref.(type) {
	case *TableName:
		if t.Name == "" {
			return
		}
		if t.Schema == "" && t.Catalog == "" && scope.has(t.Name) {
			return
		}
		x.tables = append(x.tables, t.QualifiedName())
	case *DerivedTable:
		x.visitStmt(t.Select, scope)
	case *ParenJoin:
		x.visitFrom(t.From, scope)
	case *TableFunction:
		x.visitExpr(t.Call, scope)
	case *PivotTable:
		x.visitTableRef(t.Source, scope)
	}
}

func (x *extractor) visitExprs(exprs []Expr, scope *cteScope) {
	for _, e := range exprs {
		x.visitExpr(e, scope)
	}
}

func (x *extractor) visitOrderBy(items []OrderByItem, scope *cteScope) {
	for _, item := range items {
		x.visitExpr(item.Expr, scope)
	}
}

func (x *extractor) visitWindow(w *WindowSpec, scope *cteScope) {
	if w == nil {
		return
	}
	x.visitExprs(w.PartitionBy, scope)
	x.visitOrderBy(w.OrderBy, scope)
	x.visitExprs(w.Frame, scope)
}

func (x *extractor) visitExpr(expr Expr, scope *cteScope) {
	switch e := expr.(type) {
	case nil:
	case *FuncCall:
		if e == nil {
			return
		}
		x.visitExprs(e.Args, scope)
		x.visitOrderBy(e.OrderBy, scope)
		x.visitExpr(e.Filter, scope)
		x.visitWindow(e.Window, scope)
	case *BinaryExpr:
		x.visitExpr(e.Left, scope)
		x.visitExpr(e.Right, scope)
	case *UnaryExpr:
		x.visitExpr(e.Expr, scope)
	case *InExpr:
		x.visitExpr(e.Expr, scope)
		x.visitExprs(e.Values, scope)
		x.visitStmt(e.Query, scope)
	case *BetweenExpr:
		x.visitExpr(e.Expr, scope)
		x.visitExpr(e.Low, scope)
		x.visitExpr(e.High, scope)
	case *LikeExpr:
		x.visitExpr(e.Expr, scope)
		x.visitExpr(e.Pattern, scope)
	case *IsExpr:
		x.visitExpr(e.Expr, scope)
		x.visitExpr(e.Value, scope)
	case *CaseExpr:
		x.visitExpr(e.Operand, scope)
		for _, when := range e.Whens {
			x.visitExpr(when.Condition, scope)
			x.visitExpr(when.Result, scope)
		}
		x.visitExpr(e.Else, scope)
	case *CastExpr:
		x.visitExpr(e.Expr, scope)
	case *ExistsExpr:
		x.visitStmt(e.Select, scope)
	case *SubqueryExpr:
		x.visitStmt(e.Select, scope)
	case *ParenExpr:
		x.visitExprs(e.Exprs, scope)
	case *IndexExpr:
		x.visitExpr(e.Expr, scope)
		x.visitExpr(e.Index, scope)
		x.visitExpr(e.End, scope)
	case *ListExpr:
		x.visitExprs(e.Elems, scope)
	case *IntervalExpr:
		x.visitExpr(e.Value, scope)
	case *LambdaExpr:
		x.visitExpr(e.Body, scope)
	}
}
