package parser

// Node is any AST node.
type Node interface {
	node()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// TableRef is an item of a FROM clause.
type TableRef interface {
	Node
	tableRefNode()
}

// ---------- Statements ----------

// SelectStmt is a complete query: an optional WITH clause followed by a body.
type SelectStmt struct {
	With *WithClause
	Body *SelectBody
}

// WithClause holds the common table expressions of a query.
type WithClause struct {
	Recursive bool
	CTEs      []*CTE
}

// CTE is a named subquery bound by WITH.
type CTE struct {
	Name    string
	Columns []string
	Select  *SelectStmt
}

// SetOpType is the operator joining two select bodies.
type SetOpType string

// Set operation types.
const (
	SetOpNone      SetOpType = ""
	SetOpUnion     SetOpType = "UNION"
	SetOpUnionAll  SetOpType = "UNION ALL"
	SetOpIntersect SetOpType = "INTERSECT"
	SetOpExcept    SetOpType = "EXCEPT"
)

// SelectBody is a select core optionally chained with set operations.
type SelectBody struct {
	Left  *SelectCore
	Op    SetOpType
	Right *SelectBody
	// Nested is set when the left operand is a parenthesized query.
	Nested *SelectStmt
}

// SelectCore is a single SELECT or VALUES block.
type SelectCore struct {
	Distinct bool
	Columns  []SelectItem
	From     *FromClause
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	Windows  []*WindowSpec
	Qualify  Expr
	OrderBy  []OrderByItem
	Limit    Expr
	Offset   Expr
	// Values holds the rows of a VALUES block.
	Values [][]Expr
}

// SelectItem is an entry of the select list.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// OrderByItem is an entry of an ORDER BY list.
type OrderByItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool
}

// ---------- FROM ----------

// FromClause is a table reference followed by joins.
type FromClause struct {
	Source TableRef
	Joins  []*Join
}

// JoinType is the kind of join.
type JoinType string

// Join types.
const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
	JoinSemi  JoinType = "SEMI"
	JoinAnti  JoinType = "ANTI"
	JoinComma JoinType = ","
)

// Join joins a table reference to the preceding FROM items.
type Join struct {
	Type      JoinType
	Natural   bool
	Right     TableRef
	Condition Expr
	Using     []string
}

// TableName is a possibly qualified reference to a stored table.
type TableName struct {
	Catalog string
	Schema  string
	Name    string
	Alias   string
}

// QualifiedName returns catalog.schema.name with empty parts omitted.
func (t *TableName) QualifiedName() string {
	name := t.Name
	if t.Schema != "" {
		name = t.Schema + "." + name
	}
	if t.Catalog != "" {
		name = t.Catalog + "." + name
	}
	return name
}

// DerivedTable is a subquery in FROM.
type DerivedTable struct {
	Select  *SelectStmt
	Lateral bool
	Alias   string
}

// ParenJoin is a parenthesized join tree in FROM, e.g. (a JOIN b ON ...).
type ParenJoin struct {
	From  *FromClause
	Alias string
}

// TableFunction is a function call in FROM, e.g. read_parquet('x.parquet').
type TableFunction struct {
	Call  *FuncCall
	Alias string
}

// PivotTable is a FROM item rotated by PIVOT or UNPIVOT. The pivot body is
// not kept.
type PivotTable struct {
	Source  TableRef
	Unpivot bool
	Alias   string
}

// ---------- Expressions ----------

// Literal is a constant value.
type Literal struct {
	Value string
	// TypeName is set for typed literals such as DATE '2024-01-01'.
	TypeName string
}

// Param is a bind parameter.
type Param struct {
	Name string
}

// ColumnRef references a column, optionally qualified.
type ColumnRef struct {
	Table  string
	Column string
}

// StarExpr is * or table.*.
type StarExpr struct {
	Table string
}

// FuncCall is a function or aggregate invocation.
type FuncCall struct {
	Name     string
	Distinct bool
	Star     bool
	Args     []Expr
	OrderBy  []OrderByItem
	Filter   Expr
	Window   *WindowSpec
}

// WindowSpec is an OVER clause or a named window definition.
type WindowSpec struct {
	Name        string
	PartitionBy []Expr
	OrderBy     []OrderByItem
	// Frame bound expressions (e.g. 3 PRECEDING).
	Frame []Expr
}

// BinaryExpr is a binary operation.
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

// UnaryExpr is a prefix operation.
type UnaryExpr struct {
	Op   TokenType
	Expr Expr
}

// InExpr is expr [NOT] IN (values | query).
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
	Query  *SelectStmt
}

// BetweenExpr is expr [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

// LikeExpr is expr [NOT] LIKE|ILIKE pattern.
type LikeExpr struct {
	Expr    Expr
	Not     bool
	Op      TokenType
	Pattern Expr
}

// IsExpr is expr IS [NOT] NULL|TRUE|FALSE|DISTINCT FROM x.
type IsExpr struct {
	Expr  Expr
	Not   bool
	Value Expr
}

// CaseExpr is a CASE expression.
type CaseExpr struct {
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

// WhenClause is a WHEN ... THEN ... arm.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CastExpr is CAST(expr AS type) or expr::type.
type CastExpr struct {
	Expr     Expr
	TypeName string
}

// ExistsExpr is [NOT] EXISTS (query).
type ExistsExpr struct {
	Not    bool
	Select *SelectStmt
}

// SubqueryExpr is a scalar or list subquery.
type SubqueryExpr struct {
	Select *SelectStmt
}

// ParenExpr is a parenthesized expression or row constructor.
type ParenExpr struct {
	Exprs []Expr
}

// IndexExpr is expr[index] or expr[lo:hi].
type IndexExpr struct {
	Expr  Expr
	Index Expr
	End   Expr
}

// ListExpr is a list literal [a, b, c] or a struct literal {k: v}.
type ListExpr struct {
	Elems []Expr
}

// IntervalExpr is INTERVAL value [unit].
type IntervalExpr struct {
	Value Expr
	Unit  string
}

// LambdaExpr is params -> body.
type LambdaExpr struct {
	Params Expr
	Body   Expr
}

func (*SelectStmt) node()    {}
func (*TableName) node()     {}
func (*DerivedTable) node()  {}
func (*ParenJoin) node()     {}
func (*TableFunction) node() {}
func (*PivotTable) node()    {}
func (*Literal) node()       {}
func (*Param) node()         {}
func (*ColumnRef) node()     {}
func (*StarExpr) node()      {}
func (*FuncCall) node()      {}
func (*BinaryExpr) node()    {}
func (*UnaryExpr) node()     {}
func (*InExpr) node()        {}
func (*BetweenExpr) node()   {}
func (*LikeExpr) node()      {}
func (*IsExpr) node()        {}
func (*CaseExpr) node()      {}
func (*CastExpr) node()      {}
func (*ExistsExpr) node()    {}
func (*SubqueryExpr) node()  {}
func (*ParenExpr) node()     {}
func (*IndexExpr) node()     {}
func (*ListExpr) node()      {}
func (*IntervalExpr) node()  {}
func (*LambdaExpr) node()    {}

func (*TableName) tableRefNode()     {}
func (*DerivedTable) tableRefNode()  {}
func (*ParenJoin) tableRefNode()     {}
func (*TableFunction) tableRefNode() {}
func (*PivotTable) tableRefNode()    {}

func (*Literal) exprNode()      {}
func (*Param) exprNode()        {}
func (*ColumnRef) exprNode()    {}
func (*StarExpr) exprNode()     {}
func (*FuncCall) exprNode()     {}
func (*BinaryExpr) exprNode()   {}
func (*UnaryExpr) exprNode()    {}
func (*InExpr) exprNode()       {}
func (*BetweenExpr) exprNode()  {}
func (*LikeExpr) exprNode()     {}
func (*IsExpr) exprNode()       {}
func (*CaseExpr) exprNode()     {}
func (*CastExpr) exprNode()     {}
func (*ExistsExpr) exprNode()   {}
func (*SubqueryExpr) exprNode() {}
func (*ParenExpr) exprNode()    {}
func (*IndexExpr) exprNode()    {}
func (*ListExpr) exprNode()     {}
func (*IntervalExpr) exprNode() {}
func (*LambdaExpr) exprNode()   {}
