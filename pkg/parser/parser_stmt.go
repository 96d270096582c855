package parser

import "fmt"

// Statement parsing: WITH clause, CTEs, query body, select list, clauses.
//
// Grammar:
//
//	statement     → [WITH [RECURSIVE] cte_list] query_body
//	cte_list      → cte ("," cte)*
//	cte           → identifier ["(" ident_list ")"] AS [[NOT] MATERIALIZED] "(" statement ")"
//	query_body    → query_term [(UNION|INTERSECT|EXCEPT) [ALL|DISTINCT] [BY NAME] query_body]
//	query_term    → select_core | values | "(" statement ")"
//	select_core   → SELECT [DISTINCT [ON "(" expr_list ")"]|ALL] select_list [FROM from_clause] clauses
//	              | FROM from_clause [SELECT select_list] clauses
//	select_list   → select_item ("," select_item)*
//	select_item   → "*" [EXCLUDE|REPLACE "(" ... ")"] | table "." "*" | expr [[AS] identifier]
//	order_list    → order_item ("," order_item)*
//	order_item    → expr [ASC|DESC] [NULLS FIRST|LAST]

// parseStatement parses a complete query.
func (p *Parser) parseStatement() *SelectStmt {
	stmt := &SelectStmt{}

	if p.check(TOKEN_WITH) {
		stmt.With = p.parseWithClause()
	}

	stmt.Body = p.parseQueryBody()
	return stmt
}

// parseWithClause parses a WITH clause with CTEs.
func (p *Parser) parseWithClause() *WithClause {
	p.expect(TOKEN_WITH)
	with := &WithClause{}

	if p.match(TOKEN_RECURSIVE) {
		with.Recursive = true
	}

	for {
		with.CTEs = append(with.CTEs, p.parseCTE())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return with
}

// parseCTE parses a single CTE.
func (p *Parser) parseCTE() *CTE {
	cte := &CTE{}

	if !p.check(TOKEN_IDENT) {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "CTE name"))
		return cte
	}
	cte.Name = p.token.Literal
	p.nextToken()

	if p.check(TOKEN_LPAREN) {
		cte.Columns = p.parseIdentList()
	}

	p.expect(TOKEN_AS)

	// [NOT] MATERIALIZED hint
	if p.check(TOKEN_NOT) && isWord(p.peek, "materialized") {
		p.nextToken()
		p.nextToken()
	} else {
		p.matchWord("materialized")
	}

	p.expect(TOKEN_LPAREN)
	cte.Select = p.parseStatement()
	p.expect(TOKEN_RPAREN)

	return cte
}

// parseQueryBody parses a query term with possible set operations.
func (p *Parser) parseQueryBody() *SelectBody {
	body := &SelectBody{}

	if p.check(TOKEN_LPAREN) {
		p.nextToken()
		body.Nested = p.parseStatement()
		p.expect(TOKEN_RPAREN)
		// ORDER BY / LIMIT applied to a parenthesized query
		body.Left = &SelectCore{}
		p.parseTrailingClauses(body.Left)
	} else {
		body.Left = p.parseSelectCore()
	}

	switch p.token.Type {
	case TOKEN_UNION:
		p.nextToken()
		if p.match(TOKEN_ALL) {
			body.Op = SetOpUnionAll
		} else {
			body.Op = SetOpUnion
			p.match(TOKEN_DISTINCT)
		}
	case TOKEN_INTERSECT:
		p.nextToken()
		body.Op = SetOpIntersect
		if !p.match(TOKEN_ALL) {
			p.match(TOKEN_DISTINCT)
		}
	case TOKEN_EXCEPT:
		p.nextToken()
		body.Op = SetOpExcept
		if !p.match(TOKEN_ALL) {
			p.match(TOKEN_DISTINCT)
		}
	default:
		return body
	}

	// UNION BY NAME
	if p.check(TOKEN_BY) && isWord(p.peek, "name") {
		p.nextToken()
		p.nextToken()
	}

	body.Right = p.parseQueryBody()
	return body
}

// parseSelectCore parses a single SELECT, FROM-first query, or VALUES block.
func (p *Parser) parseSelectCore() *SelectCore {
	core := &SelectCore{}

	switch {
	case p.check(TOKEN_VALUES):
		p.nextToken()
		core.Values = p.parseValuesRows()
		p.parseTrailingClauses(core)
		return core

	case p.check(TOKEN_FROM):
		// FROM-first syntax: FROM t [SELECT ...]
		p.nextToken()
		core.From = p.parseFromClause()
		if p.match(TOKEN_SELECT) {
			p.parseSelectModifiers(core)
			core.Columns = p.parseSelectList()
		} else {
			core.Columns = []SelectItem{{Expr: &StarExpr{}}}
		}
		p.parseClauses(core)
		return core
	}

	if !p.expect(TOKEN_SELECT) {
		return core
	}
	p.parseSelectModifiers(core)
	core.Columns = p.parseSelectList()

	if p.match(TOKEN_FROM) {
		core.From = p.parseFromClause()
	}

	p.parseClauses(core)
	return core
}

// parseSelectModifiers parses DISTINCT [ON (...)] or ALL after SELECT.
func (p *Parser) parseSelectModifiers(core *SelectCore) {
	if p.match(TOKEN_DISTINCT) {
		core.Distinct = true
		if p.match(TOKEN_ON) {
			p.expect(TOKEN_LPAREN)
			p.parseExpressionList()
			p.expect(TOKEN_RPAREN)
		}
		return
	}
	p.match(TOKEN_ALL)
}

// parseValuesRows parses ("(" expr_list ")") ("," "(" expr_list ")")*.
func (p *Parser) parseValuesRows() [][]Expr {
	var rows [][]Expr
	for {
		p.expect(TOKEN_LPAREN)
		rows = append(rows, p.parseExpressionList())
		p.expect(TOKEN_RPAREN)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return rows
}

// parseClauses parses the optional clauses following FROM in their fixed order.
func (p *Parser) parseClauses(core *SelectCore) {
	if p.match(TOKEN_WHERE) {
		core.Where = p.parseExpression()
	}

	if p.match(TOKEN_GROUP) {
		p.expect(TOKEN_BY)
		core.GroupBy = p.parseGroupByList()
	}

	if p.match(TOKEN_HAVING) {
		core.Having = p.parseExpression()
	}

	if p.match(TOKEN_WINDOW) {
		for {
			if !p.check(TOKEN_IDENT) {
				p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "window name"))
				return
			}
			name := p.token.Literal
			p.nextToken()
			p.expect(TOKEN_AS)
			spec := p.parseWindowSpec()
			spec.Name = name
			core.Windows = append(core.Windows, spec)
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
	}

	if p.match(TOKEN_QUALIFY) {
		core.Qualify = p.parseExpression()
	}

	p.parseTrailingClauses(core)
}

// parseTrailingClauses parses ORDER BY, LIMIT and OFFSET.
func (p *Parser) parseTrailingClauses(core *SelectCore) {
	if p.match(TOKEN_ORDER) {
		p.expect(TOKEN_BY)
		if !p.match(TOKEN_ALL) {
			core.OrderBy = p.parseOrderByList()
		} else {
			p.parseSortDirection(&OrderByItem{})
		}
	}

	if p.match(TOKEN_LIMIT) {
		core.Limit = p.parseExpression()
		// LIMIT n%
		p.match(TOKEN_PERCENT)
	}

	if p.match(TOKEN_OFFSET) {
		core.Offset = p.parseExpression()
	}
}

// parseGroupByList parses a GROUP BY list, including GROUP BY ALL and GROUPING SETS.
func (p *Parser) parseGroupByList() []Expr {
	if p.match(TOKEN_ALL) {
		return nil
	}

	var exprs []Expr
	for {
		if p.checkWord("grouping") && isWord(p.peek, "sets") {
			p.nextToken()
			p.nextToken()
		}
		exprs = append(exprs, p.parseExpression())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return exprs
}

// parseSelectList parses the select list.
func (p *Parser) parseSelectList() []SelectItem {
	var items []SelectItem
	for {
		items = append(items, p.parseSelectItem())
		if !p.match(TOKEN_COMMA) {
			break
		}
		// Trailing comma before FROM
		if p.check(TOKEN_FROM) {
			break
		}
	}
	return items
}

// parseSelectItem parses a single select list entry.
func (p *Parser) parseSelectItem() SelectItem {
	item := SelectItem{}

	item.Expr = p.parseExpression()

	if _, isStar := item.Expr.(*StarExpr); isStar {
		p.parseStarModifiers()
		return item
	}

	if p.match(TOKEN_AS) {
		if !p.check(TOKEN_IDENT) && !p.check(TOKEN_STRING) {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "alias"))
			return item
		}
		item.Alias = p.token.Literal
		p.nextToken()
	} else if p.check(TOKEN_IDENT) {
		item.Alias = p.token.Literal
		p.nextToken()
	}

	return item
}

// parseStarModifiers parses * EXCLUDE (...) / * REPLACE (...) / * RENAME (...).
func (p *Parser) parseStarModifiers() {
	for p.checkWord("exclude") || p.checkWord("replace") || p.checkWord("rename") {
		p.nextToken()
		if !p.check(TOKEN_LPAREN) {
			// Single column form: * EXCLUDE col
			p.parseExpression()
			continue
		}
		p.nextToken()
		for {
			p.parseExpression()
			if p.match(TOKEN_AS) {
				p.parseExpression()
			}
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
	}
}

// parseOrderByList parses an ORDER BY list.
func (p *Parser) parseOrderByList() []OrderByItem {
	var items []OrderByItem
	for {
		item := OrderByItem{Expr: p.parseExpression()}
		p.parseSortDirection(&item)
		items = append(items, item)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return items
}

// parseSortDirection parses [ASC|DESC] [NULLS FIRST|LAST].
func (p *Parser) parseSortDirection(item *OrderByItem) {
	if p.match(TOKEN_DESC) {
		item.Desc = true
	} else {
		p.match(TOKEN_ASC)
	}

	if p.matchWord("nulls") {
		switch {
		case p.matchWord("first"):
			first := true
			item.NullsFirst = &first
		case p.matchWord("last"):
			first := false
			item.NullsFirst = &first
		default:
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "FIRST or LAST"))
		}
	}
}
