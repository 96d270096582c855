package parser

import (
	"fmt"
	"strings"
)

// FROM clause parsing: table references, derived tables, lateral joins, JOINs.
//
// Grammar:
//
//	from_clause   → table_ref (join)*
//	table_ref     → table_source (pivot)*
//	table_source  → table_name | table_func | derived_table | paren_join
//	pivot         → (PIVOT | UNPIVOT [(INCLUDE|EXCLUDE) NULLS]) "(" ... ")" [alias]
//	table_name    → [catalog "."] [schema "."] identifier [alias]
//	table_func    → table_name "(" [arg_list] ")" [alias]
//	derived_table → [LATERAL] "(" statement ")" [alias]
//	paren_join    → "(" from_clause ")" [alias]
//	alias         → [AS] identifier ["(" ident_list ")"]
//	join          → "," table_ref | [NATURAL] join_type JOIN table_ref [ON expr | USING "(" ident_list ")"]
//	join_type     → [INNER] | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS
//	              | [LEFT] SEMI | [LEFT] ANTI | ASOF [LEFT] | POSITIONAL

// parseFromClause parses the FROM clause.
func (p *Parser) parseFromClause() *FromClause {
	from := &FromClause{}
	from.Source = p.parseTableRef()

	for {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}

	return from
}

// parseTableRef parses a table reference.
func (p *Parser) parseTableRef() TableRef {
	ref := p.parseTableSource()
	for p.atPivot() {
		ref = p.parsePivot(ref)
	}
	return ref
}

// parseTableSource parses a table reference without PIVOT/UNPIVOT.
func (p *Parser) parseTableSource() TableRef {
	if p.match(TOKEN_LATERAL) {
		if !p.check(TOKEN_LPAREN) {
			// LATERAL table function
			return p.parseTableName()
		}
		derived := p.parseDerivedTable()
		derived.Lateral = true
		return derived
	}

	if p.check(TOKEN_LPAREN) {
		if p.startsQuery(p.peek, p.peek2) {
			return p.parseDerivedTable()
		}
		return p.parseParenJoin()
	}

	return p.parseTableName()
}

// startsQuery reports whether tok (followed by next) can begin a nested statement.
func (p *Parser) startsQuery(tok, next Token) bool {
	switch tok.Type {
	case TOKEN_SELECT, TOKEN_WITH, TOKEN_VALUES, TOKEN_FROM:
		return true
	case TOKEN_LPAREN:
		// ((SELECT ...) UNION ...) is a query; ((a JOIN b)) is a join tree
		return next.Type == TOKEN_SELECT || next.Type == TOKEN_WITH
	}
	return false
}

// parseTableName parses a table name with optional schema/catalog,
// or a table function when the name is followed by "(".
func (p *Parser) parseTableName() TableRef {
	if !p.check(TOKEN_IDENT) {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "table name"))
		return &TableName{}
	}

	// Parse potentially qualified name: catalog.schema.table
	parts := []string{identName(p.token)}
	p.nextToken()

	for p.match(TOKEN_DOT) {
		if !p.check(TOKEN_IDENT) {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "identifier after '.'"))
			return &TableName{}
		}
		parts = append(parts, identName(p.token))
		p.nextToken()
	}

	if p.check(TOKEN_LPAREN) {
		call := p.parseFuncCall(strings.Join(parts, "."))
		fn := &TableFunction{Call: call}
		fn.Alias = p.parseAlias()
		return fn
	}

	if len(parts) > 3 {
		p.addError(fmt.Sprintf("table name %q has too many parts", strings.Join(parts, ".")))
		return &TableName{}
	}

	table := &TableName{}
	switch len(parts) {
	case 1:
		table.Name = parts[0]
	case 2:
		table.Schema = parts[0]
		table.Name = parts[1]
	case 3:
		table.Catalog = parts[0]
		table.Schema = parts[1]
		table.Name = parts[2]
	}

	table.Alias = p.parseAlias()
	p.skipSample()
	return table
}

// atPivot reports whether a PIVOT or UNPIVOT clause starts at the current token.
func (p *Parser) atPivot() bool {
	switch {
	case p.checkWord("pivot"):
		return p.peek.Type == TOKEN_LPAREN
	case p.checkWord("unpivot"):
		return p.peek.Type == TOKEN_LPAREN || isWord(p.peek, "include") || isWord(p.peek, "exclude")
	}
	return false
}

// parsePivot parses the PIVOT/UNPIVOT clause applied to source. The body
// only names columns and values of source, so it is skipped.
func (p *Parser) parsePivot(source TableRef) *PivotTable {
	pivot := &PivotTable{Source: source, Unpivot: p.checkWord("unpivot")}
	p.nextToken()

	if pivot.Unpivot && (p.matchWord("include") || p.matchWord("exclude")) {
		if !p.matchWord("nulls") {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "NULLS"))
			return pivot
		}
	}

	p.skipParenthesized()
	pivot.Alias = p.parseAlias()
	return pivot
}

// skipParenthesized consumes a balanced "(" ... ")" group.
func (p *Parser) skipParenthesized() {
	if !p.expect(TOKEN_LPAREN) {
		return
	}
	for depth := 1; depth > 0; p.nextToken() {
		switch p.token.Type {
		case TOKEN_EOF:
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), TOKEN_RPAREN))
			return
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
		}
	}
}

// identName returns an identifier as the engine resolves it: unquoted
// identifiers are case-insensitive and fold to lower case.
func identName(tok Token) string {
	if tok.Quoted {
		return tok.Literal
	}
	return strings.ToLower(tok.Literal)
}

// skipSample skips TABLESAMPLE n% / USING SAMPLE n.
func (p *Parser) skipSample() {
	switch {
	case p.matchWord("tablesample"):
	case p.check(TOKEN_USING) && isWord(p.peek, "sample"):
		p.nextToken()
		p.nextToken()
	default:
		return
	}
	p.parseExpressionWithPrecedence(precedenceAddition)
	p.match(TOKEN_PERCENT)
	p.matchWord("rows")
}

// parseDerivedTable parses a derived table (subquery in FROM).
func (p *Parser) parseDerivedTable() *DerivedTable {
	p.expect(TOKEN_LPAREN)
	derived := &DerivedTable{}
	derived.Select = p.parseStatement()
	p.expect(TOKEN_RPAREN)

	derived.Alias = p.parseAlias()
	return derived
}

// parseParenJoin parses a parenthesized join tree.
func (p *Parser) parseParenJoin() *ParenJoin {
	p.expect(TOKEN_LPAREN)
	paren := &ParenJoin{From: p.parseFromClause()}
	p.expect(TOKEN_RPAREN)

	paren.Alias = p.parseAlias()
	return paren
}

// parseJoin parses a JOIN clause. Returns nil when no join follows.
func (p *Parser) parseJoin() *Join {
	join := &Join{}

	// Comma join (implicit cross join)
	if p.match(TOKEN_COMMA) {
		join.Type = JoinComma
		join.Right = p.parseTableRef()
		return join
	}

	if p.match(TOKEN_NATURAL) {
		join.Natural = true
	}

	switch {
	case p.match(TOKEN_JOIN):
		join.Type = JoinInner
		return p.finishJoin(join, false)
	case p.match(TOKEN_INNER):
		join.Type = JoinInner
	case p.match(TOKEN_LEFT):
		join.Type = JoinLeft
		switch {
		case p.matchWord("semi"):
			join.Type = JoinSemi
		case p.matchWord("anti"):
			join.Type = JoinAnti
		default:
			p.match(TOKEN_OUTER)
		}
	case p.match(TOKEN_RIGHT):
		join.Type = JoinRight
		p.match(TOKEN_OUTER)
	case p.match(TOKEN_FULL):
		join.Type = JoinFull
		p.match(TOKEN_OUTER)
	case p.match(TOKEN_CROSS):
		join.Type = JoinCross
	case p.matchWord("semi"):
		join.Type = JoinSemi
	case p.matchWord("anti"):
		join.Type = JoinAnti
	case p.matchWord("asof"):
		join.Type = JoinInner
		if p.match(TOKEN_LEFT) {
			join.Type = JoinLeft
		}
	case p.matchWord("positional"):
		join.Type = JoinCross
	default:
		if join.Natural {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "JOIN"))
		}
		return nil
	}

	if !p.expect(TOKEN_JOIN) {
		return nil
	}
	return p.finishJoin(join, join.Type == JoinCross)
}

// finishJoin parses the right side and the join condition.
func (p *Parser) finishJoin(join *Join, cross bool) *Join {
	join.Right = p.parseTableRef()

	switch {
	case join.Natural || cross:
		if p.check(TOKEN_ON) || p.check(TOKEN_USING) {
			p.addError(fmt.Sprintf("%s JOIN cannot have a join condition", joinLabel(join)))
		}
	case p.match(TOKEN_ON):
		join.Condition = p.parseExpression()
	case p.match(TOKEN_USING):
		join.Using = p.parseIdentList()
	}
	return join
}

func joinLabel(join *Join) string {
	if join.Natural {
		return "NATURAL"
	}
	return string(join.Type)
}
