package parser

import "strings"

// Special expression parsing: CASE, CAST, EXISTS, parenthesized expressions, subqueries.
//
// Grammar:
//
//	case_expr     → CASE [expr] (WHEN expr THEN expr)+ [ELSE expr] END
//	cast_expr     → CAST "(" expr AS type_name ")"
//	exists_expr   → [NOT] EXISTS "(" statement ")"
//	paren_expr    → "(" expr_list ")" | "(" statement ")"  -- subquery if SELECT/WITH
//	type_name     → identifier ["(" type_args ")"] ("[" "]")*

// parseCaseExpr parses a CASE expression.
func (p *Parser) parseCaseExpr() Expr {
	p.expect(TOKEN_CASE)
	caseExpr := &CaseExpr{}

	// Simple CASE: CASE expr WHEN ...
	if !p.check(TOKEN_WHEN) {
		caseExpr.Operand = p.parseExpression()
	}

	if !p.check(TOKEN_WHEN) {
		p.addError("expected WHEN in CASE expression")
		return caseExpr
	}

	for p.match(TOKEN_WHEN) {
		when := WhenClause{}
		when.Condition = p.parseExpression()
		p.expect(TOKEN_THEN)
		when.Result = p.parseExpression()
		caseExpr.Whens = append(caseExpr.Whens, when)
	}

	if p.match(TOKEN_ELSE) {
		caseExpr.Else = p.parseExpression()
	}

	p.expect(TOKEN_END)
	return caseExpr
}

// parseCastExpr parses a CAST expression.
func (p *Parser) parseCastExpr() Expr {
	p.expect(TOKEN_CAST)
	p.expect(TOKEN_LPAREN)

	cast := &CastExpr{}
	cast.Expr = p.parseExpression()

	p.expect(TOKEN_AS)
	cast.TypeName = p.parseTypeName()

	p.expect(TOKEN_RPAREN)
	return cast
}

// parseTypeName parses a type name with optional parameters and array suffixes,
// e.g. VARCHAR(255), DECIMAL(10, 2), DOUBLE PRECISION, INTEGER[].
func (p *Parser) parseTypeName() string {
	if !p.check(TOKEN_IDENT) {
		p.addError("expected type name")
		return ""
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(p.token.Literal))
	p.nextToken()

	// Multi-word types
	for p.checkWord("precision") || p.checkWord("varying") ||
		(p.checkWord("without") && isWord(p.peek, "time")) {
		b.WriteString(" " + strings.ToUpper(p.token.Literal))
		p.nextToken()
	}
	if p.check(TOKEN_WITH) && isWord(p.peek, "time") {
		p.nextToken()
		b.WriteString(" WITH")
	}
	if p.checkWord("time") && isWord(p.peek, "zone") {
		p.nextToken()
		p.nextToken()
		b.WriteString(" TIME ZONE")
	}

	// Type parameters like VARCHAR(255), DECIMAL(10, 2), STRUCT(a INT)
	if p.match(TOKEN_LPAREN) {
		b.WriteString("(")
		depth := 1
		for depth > 0 && !p.check(TOKEN_EOF) {
			switch p.token.Type {
			case TOKEN_LPAREN:
				depth++
			case TOKEN_RPAREN:
				depth--
			}
			if depth > 0 {
				b.WriteString(p.token.Literal)
			}
			p.nextToken()
		}
		if depth > 0 {
			p.addError("unterminated type parameters")
		}
		b.WriteString(")")
	}

	for p.check(TOKEN_LBRACKET) && p.checkPeek(TOKEN_RBRACKET) {
		p.nextToken()
		p.nextToken()
		b.WriteString("[]")
	}

	return b.String()
}

// parseParenExpr parses a parenthesized expression, row constructor, or subquery.
func (p *Parser) parseParenExpr() Expr {
	p.expect(TOKEN_LPAREN)

	if p.startsQuery(p.token, p.peek) {
		subquery := &SubqueryExpr{Select: p.parseStatement()}
		p.expect(TOKEN_RPAREN)
		return subquery
	}

	paren := &ParenExpr{Exprs: p.parseExpressionList()}
	p.expect(TOKEN_RPAREN)
	return paren
}

// parseExistsExpr parses an EXISTS expression. The current token is EXISTS.
func (p *Parser) parseExistsExpr(not bool) Expr {
	p.nextToken()

	p.expect(TOKEN_LPAREN)
	exists := &ExistsExpr{Not: not, Select: p.parseStatement()}
	p.expect(TOKEN_RPAREN)

	return exists
}
