package parser

import "fmt"

// Expression precedence parsing using a Pratt parser.
//
// Precedence levels:
//
//	precedenceNone       = 0
//	precedenceOr         = 1
//	precedenceAnd        = 2
//	precedenceNot        = 3
//	precedenceComparison = 4  (=, !=, <, >, <=, >=, IS, IN, BETWEEN, LIKE, ILIKE)
//	precedenceAddition   = 5  (+, -, ||)
//	precedenceMultiply   = 6  (*, /, %)
//	precedenceUnary      = 7  (-, +)
//	precedencePostfix    = 8  (::, [], ->)

const (
	precedenceNone = iota
	precedenceOr
	precedenceAnd
	precedenceNot
	precedenceComparison
	precedenceAddition
	precedenceMultiply
	precedenceUnary
	precedencePostfix
)

// parseExpression parses an expression using precedence climbing.
func (p *Parser) parseExpression() Expr {
	return p.parseExpressionWithPrecedence(precedenceNone + 1)
}

// parseExpressionList parses a comma-separated list of expressions.
func (p *Parser) parseExpressionList() []Expr {
	var exprs []Expr
	for {
		exprs = append(exprs, p.parseExpression())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return exprs
}

// parseExpressionWithPrecedence implements Pratt parsing.
func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) Expr {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for {
		prec := p.infixPrecedence()
		if prec < minPrecedence {
			break
		}

		left = p.parseInfixExpr(left, prec)
		if left == nil {
			break
		}
	}

	return left
}

// parsePrefixExpr parses prefix expressions (unary operators and primary expressions).
func (p *Parser) parsePrefixExpr() Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		if p.checkPeek(TOKEN_EXISTS) {
			p.nextToken() // consume NOT
			return p.parseExistsExpr(true)
		}
		p.nextToken()
		return &UnaryExpr{Op: TOKEN_NOT, Expr: p.parseExpressionWithPrecedence(precedenceNot)}

	case TOKEN_MINUS, TOKEN_PLUS:
		op := p.token.Type
		p.nextToken()
		return &UnaryExpr{Op: op, Expr: p.parseExpressionWithPrecedence(precedenceUnary)}

	default:
		return p.parsePrimary()
	}
}

// infixPrecedence returns the precedence of the current token as an infix operator.
// Returns precedenceNone if the token is not an infix operator.
func (p *Parser) infixPrecedence() int {
	switch p.token.Type {
	case TOKEN_OR:
		return precedenceOr
	case TOKEN_AND:
		return precedenceAnd
	case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_GT, TOKEN_LE, TOKEN_GE,
		TOKEN_IS, TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
		return precedenceComparison
	case TOKEN_NOT:
		// NOT IN, NOT LIKE, NOT BETWEEN, NOT ILIKE
		switch p.peek.Type {
		case TOKEN_IN, TOKEN_LIKE, TOKEN_ILIKE, TOKEN_BETWEEN:
			return precedenceComparison
		}
		return precedenceNone
	case TOKEN_PLUS, TOKEN_MINUS, TOKEN_DPIPE:
		return precedenceAddition
	case TOKEN_STAR, TOKEN_SLASH, TOKEN_PERCENT:
		return precedenceMultiply
	case TOKEN_DCOLON, TOKEN_LBRACKET, TOKEN_ARROW:
		return precedencePostfix
	case TOKEN_DOT:
		// Field access on a parenthesized or struct value: (s).field
		return precedencePostfix
	}
	return precedenceNone
}

// parseInfixExpr parses an infix expression given the left operand and current precedence.
func (p *Parser) parseInfixExpr(left Expr, prec int) Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		return p.parseNotInfixExpr(left)

	case TOKEN_IS:
		return p.parseIsExpr(left)

	case TOKEN_IN:
		p.nextToken()
		return p.parseInExpr(left, false)

	case TOKEN_BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, false)

	case TOKEN_LIKE, TOKEN_ILIKE:
		op := p.token.Type
		p.nextToken()
		return p.parseLikeExpr(left, false, op)

	case TOKEN_DCOLON:
		p.nextToken()
		return &CastExpr{Expr: left, TypeName: p.parseTypeName()}

	case TOKEN_LBRACKET:
		return p.parseIndexExpr(left)

	case TOKEN_ARROW:
		return p.parseArrowExpr(left)

	case TOKEN_DOT:
		p.nextToken()
		if !p.check(TOKEN_IDENT) {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "field name"))
			return left
		}
		field := &Literal{Value: p.token.Literal}
		p.nextToken()
		return &IndexExpr{Expr: left, Index: field}
	}

	// Standard binary operators
	op := p.token
	p.nextToken()

	// Parse right operand with higher precedence (left-associative)
	right := p.parseExpressionWithPrecedence(prec + 1)

	return &BinaryExpr{Left: left, Op: op.Type, Right: right}
}

// parseNotInfixExpr handles NOT as an infix modifier (NOT IN, NOT BETWEEN, NOT LIKE).
func (p *Parser) parseNotInfixExpr(left Expr) Expr {
	p.nextToken() // consume NOT

	switch p.token.Type {
	case TOKEN_IN:
		p.nextToken()
		return p.parseInExpr(left, true)

	case TOKEN_BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, true)

	case TOKEN_LIKE, TOKEN_ILIKE:
		op := p.token.Type
		p.nextToken()
		return p.parseLikeExpr(left, true, op)

	default:
		p.addError("expected IN, BETWEEN, LIKE, or ILIKE after NOT")
		return left
	}
}

// parseIsExpr parses IS [NOT] NULL|TRUE|FALSE and IS [NOT] DISTINCT FROM expr.
func (p *Parser) parseIsExpr(left Expr) Expr {
	p.nextToken() // consume IS

	is := &IsExpr{Expr: left, Not: p.match(TOKEN_NOT)}

	switch p.token.Type {
	case TOKEN_NULL, TOKEN_TRUE, TOKEN_FALSE:
		is.Value = &Literal{Value: p.token.Literal}
		p.nextToken()

	case TOKEN_DISTINCT:
		p.nextToken()
		p.expect(TOKEN_FROM)
		is.Value = p.parseExpressionWithPrecedence(precedenceAddition)

	default:
		p.addError("expected NULL, TRUE, FALSE, or DISTINCT FROM after IS")
		return left
	}
	return is
}

// parseInExpr parses an IN expression.
func (p *Parser) parseInExpr(left Expr, not bool) Expr {
	in := &InExpr{Expr: left, Not: not}

	if !p.check(TOKEN_LPAREN) {
		// DuckDB: x IN list_column
		in.Values = []Expr{p.parseExpressionWithPrecedence(precedenceAddition)}
		return in
	}

	p.expect(TOKEN_LPAREN)
	switch {
	case p.startsQuery(p.token, p.peek):
		in.Query = p.parseStatement()
	case p.check(TOKEN_RPAREN):
		// empty list
	default:
		in.Values = p.parseExpressionList()
	}
	p.expect(TOKEN_RPAREN)
	return in
}

// parseBetweenExpr parses a BETWEEN expression.
func (p *Parser) parseBetweenExpr(left Expr, not bool) Expr {
	between := &BetweenExpr{Expr: left, Not: not}
	// Bounds are parsed at addition precedence to avoid capturing AND
	between.Low = p.parseExpressionWithPrecedence(precedenceAddition)
	p.expect(TOKEN_AND)
	between.High = p.parseExpressionWithPrecedence(precedenceAddition)
	return between
}

// parseLikeExpr parses a LIKE/ILIKE expression.
func (p *Parser) parseLikeExpr(left Expr, not bool, op TokenType) Expr {
	like := &LikeExpr{Expr: left, Not: not, Op: op}
	like.Pattern = p.parseExpressionWithPrecedence(precedenceAddition)
	if p.matchWord("escape") {
		p.parseExpressionWithPrecedence(precedenceAddition)
	}
	return like
}

// parseIndexExpr parses expr[index] and expr[lo:hi].
func (p *Parser) parseIndexExpr(left Expr) Expr {
	p.expect(TOKEN_LBRACKET)
	idx := &IndexExpr{Expr: left}
	if !p.check(TOKEN_COLON) {
		idx.Index = p.parseExpression()
	}
	if p.match(TOKEN_COLON) && !p.check(TOKEN_RBRACKET) {
		idx.End = p.parseExpression()
	}
	p.expect(TOKEN_RBRACKET)
	return idx
}

// parseArrowExpr parses a lambda (x -> x + 1) or JSON extraction (col -> 'key').
func (p *Parser) parseArrowExpr(left Expr) Expr {
	op := p.token
	p.nextToken()

	isParam := false
	switch l := left.(type) {
	case *ColumnRef:
		isParam = l.Table == ""
	case *ParenExpr:
		isParam = true
	}

	if isParam && op.Literal == "->" && !p.check(TOKEN_STRING) && !p.check(TOKEN_NUMBER) {
		return &LambdaExpr{Params: left, Body: p.parseExpression()}
	}
	return &BinaryExpr{Left: left, Op: TOKEN_ARROW, Right: p.parseExpressionWithPrecedence(precedencePostfix + 1)}
}
