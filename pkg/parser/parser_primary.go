package parser

import (
	"fmt"
	"strings"
)

// Primary expression parsing: literals, column refs, function calls.
//
// Grammar:
//
//	primary       → literal | param | column_ref | func_call | paren_expr | case_expr
//	              | cast_expr | exists_expr | interval | list | struct
//	literal       → NUMBER | STRING | TRUE | FALSE | NULL | type_name STRING
//	column_ref    → [table "."] column | [schema "." table "."] column
//	func_call     → identifier "(" [DISTINCT] [arg_list | "*"] [ORDER BY order_list] ")"
//	                [WITHIN GROUP "(" ORDER BY order_list ")"]
//	                [FILTER "(" WHERE expr ")"] [OVER window_spec]
//	interval      → INTERVAL (STRING | expr) [unit]
//	list          → "[" [expr_list] "]"
//	struct        → "{" [key ":" expr ("," key ":" expr)*] "}"

// parsePrimary parses primary expressions.
func (p *Parser) parsePrimary() Expr {
	switch p.token.Type {
	case TOKEN_NUMBER, TOKEN_STRING:
		lit := &Literal{Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_TRUE, TOKEN_FALSE, TOKEN_NULL:
		lit := &Literal{Value: strings.ToLower(p.token.Literal)}
		p.nextToken()
		return lit

	case TOKEN_PARAM:
		param := &Param{Name: p.token.Literal}
		p.nextToken()
		return param

	case TOKEN_CASE:
		return p.parseCaseExpr()

	case TOKEN_CAST:
		return p.parseCastExpr()

	case TOKEN_EXISTS:
		return p.parseExistsExpr(false)

	case TOKEN_IDENT:
		return p.parseIdentifierExpr()

	case TOKEN_LEFT, TOKEN_RIGHT:
		// left(s, n) / right(s, n)
		if p.checkPeek(TOKEN_LPAREN) {
			name := p.token.Literal
			p.nextToken()
			return p.parseFuncCall(name)
		}

	case TOKEN_LPAREN:
		return p.parseParenExpr()

	case TOKEN_LBRACKET:
		return p.parseListExpr()

	case TOKEN_LBRACE:
		return p.parseStructExpr()

	case TOKEN_STAR:
		p.nextToken()
		return &StarExpr{}
	}

	p.addError(fmt.Sprintf("unexpected %s in expression", p.describe(p.token)))
	return nil
}

// parseIdentifierExpr parses an identifier which could be a column ref, function call,
// typed literal or interval.
func (p *Parser) parseIdentifierExpr() Expr {
	tok := p.token

	if !tok.Quoted {
		if isWord(tok, "interval") && (p.checkPeek(TOKEN_STRING) || p.checkPeek(TOKEN_NUMBER) || p.checkPeek(TOKEN_LPAREN)) {
			return p.parseIntervalExpr()
		}
		// Typed literal: DATE '2024-01-01', TIMESTAMP '...'
		if p.checkPeek(TOKEN_STRING) {
			p.nextToken()
			lit := &Literal{Value: p.token.Literal, TypeName: strings.ToUpper(tok.Literal)}
			p.nextToken()
			return lit
		}
	}

	name := tok.Literal
	p.nextToken()

	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(name)
	}

	if p.check(TOKEN_DOT) {
		return p.parseQualifiedRef(name)
	}

	return &ColumnRef{Column: name}
}

// parseQualifiedRef parses table.column, schema.table.column, table.* or schema.func(...).
func (p *Parser) parseQualifiedRef(firstPart string) Expr {
	parts := []string{firstPart}

	for p.match(TOKEN_DOT) {
		if p.check(TOKEN_STAR) {
			p.nextToken()
			return &StarExpr{Table: strings.Join(parts, ".")}
		}
		if !p.check(TOKEN_IDENT) {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "identifier after '.'"))
			return nil
		}
		parts = append(parts, p.token.Literal)
		p.nextToken()
	}

	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(strings.Join(parts, "."))
	}

	last := len(parts) - 1
	return &ColumnRef{Table: strings.Join(parts[:last], "."), Column: parts[last]}
}

// parseFuncCall parses a function call. The current token is "(".
func (p *Parser) parseFuncCall(name string) *FuncCall {
	fn := &FuncCall{Name: strings.ToUpper(name)}

	p.expect(TOKEN_LPAREN)

	switch {
	case p.check(TOKEN_STAR):
		fn.Star = true
		p.nextToken()
	case !p.check(TOKEN_RPAREN):
		if p.match(TOKEN_DISTINCT) {
			fn.Distinct = true
		} else {
			p.match(TOKEN_ALL)
		}
		fn.Args = p.parseFuncArgs()
		if p.match(TOKEN_ORDER) {
			p.expect(TOKEN_BY)
			fn.OrderBy = p.parseOrderByList()
		}
	}

	p.expect(TOKEN_RPAREN)

	// WITHIN GROUP (ORDER BY ...)
	if p.checkWord("within") && p.checkPeek(TOKEN_GROUP) {
		p.nextToken()
		p.nextToken()
		p.expect(TOKEN_LPAREN)
		p.expect(TOKEN_ORDER)
		p.expect(TOKEN_BY)
		fn.OrderBy = p.parseOrderByList()
		p.expect(TOKEN_RPAREN)
	}

	// FILTER (WHERE ...)
	if p.checkWord("filter") && p.checkPeek(TOKEN_LPAREN) {
		p.nextToken()
		p.expect(TOKEN_LPAREN)
		p.expect(TOKEN_WHERE)
		fn.Filter = p.parseExpression()
		p.expect(TOKEN_RPAREN)
	}

	// IGNORE NULLS / RESPECT NULLS
	if (p.checkWord("ignore") || p.checkWord("respect")) && isWord(p.peek, "nulls") {
		p.nextToken()
		p.nextToken()
	}

	if p.matchWord("over") {
		fn.Window = p.parseWindowSpec()
	}

	return fn
}

// parseFuncArgs parses function arguments, including the keyword-separated
// forms EXTRACT(x FROM y), SUBSTRING(x FROM a FOR b), TRY_CAST(x AS t)
// and named arguments name := value.
func (p *Parser) parseFuncArgs() []Expr {
	var args []Expr
	for {
		// Named argument: name := value
		if p.check(TOKEN_IDENT) && p.checkPeek(TOKEN_COLON) && p.peek2.Type == TOKEN_EQ {
			p.nextToken()
			p.nextToken()
			p.nextToken()
		}

		arg := p.parseExpression()
		if p.match(TOKEN_AS) {
			arg = &CastExpr{Expr: arg, TypeName: p.parseTypeName()}
		}
		args = append(args, arg)

		if p.match(TOKEN_FROM) || p.matchWord("for") {
			continue
		}
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return args
}

// parseWindowSpec parses a window specification after OVER or WINDOW name AS.
//
// Grammar:
//
//	window_spec   → identifier | "(" [base_window] [PARTITION BY expr_list] [ORDER BY order_list] [frame_spec] ")"
//	frame_spec    → (ROWS|RANGE|GROUPS) (BETWEEN frame_bound AND frame_bound | frame_bound) [EXCLUDE ...]
//	frame_bound   → UNBOUNDED (PRECEDING|FOLLOWING) | CURRENT ROW | expr (PRECEDING|FOLLOWING)
func (p *Parser) parseWindowSpec() *WindowSpec {
	spec := &WindowSpec{}

	// Named window reference
	if p.check(TOKEN_IDENT) {
		spec.Name = p.token.Literal
		p.nextToken()
		return spec
	}

	p.expect(TOKEN_LPAREN)

	// Base window name
	if p.check(TOKEN_IDENT) && !p.checkWord("partition") && !p.isFrameStart() {
		spec.Name = p.token.Literal
		p.nextToken()
	}

	if p.matchWord("partition") {
		p.expect(TOKEN_BY)
		spec.PartitionBy = p.parseExpressionList()
	}

	if p.match(TOKEN_ORDER) {
		p.expect(TOKEN_BY)
		spec.OrderBy = p.parseOrderByList()
	}

	if p.isFrameStart() {
		p.nextToken()
		if p.match(TOKEN_BETWEEN) {
			spec.Frame = append(spec.Frame, p.parseFrameBound())
			p.expect(TOKEN_AND)
			spec.Frame = append(spec.Frame, p.parseFrameBound())
		} else {
			spec.Frame = append(spec.Frame, p.parseFrameBound())
		}
		if p.matchWord("exclude") {
			for !p.check(TOKEN_RPAREN) && !p.check(TOKEN_EOF) {
				p.nextToken()
			}
		}
	}

	p.expect(TOKEN_RPAREN)
	return spec
}

func (p *Parser) isFrameStart() bool {
	return p.checkWord("rows") || p.checkWord("range") || p.checkWord("groups")
}

// parseFrameBound parses a frame bound and returns its offset expression (nil for
// UNBOUNDED and CURRENT ROW).
func (p *Parser) parseFrameBound() Expr {
	switch {
	case p.matchWord("unbounded"):
		if !p.matchWord("preceding") && !p.matchWord("following") {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "PRECEDING or FOLLOWING"))
		}
		return nil
	case p.matchWord("current"):
		if !p.matchWord("row") {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "ROW"))
		}
		return nil
	}

	offset := p.parseExpressionWithPrecedence(precedenceAddition)
	if !p.matchWord("preceding") && !p.matchWord("following") {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "PRECEDING or FOLLOWING"))
	}
	return offset
}

// parseIntervalExpr parses INTERVAL '1 day', INTERVAL 1 DAY, INTERVAL (n) HOUR.
func (p *Parser) parseIntervalExpr() Expr {
	p.nextToken() // consume INTERVAL
	interval := &IntervalExpr{}
	if p.check(TOKEN_STRING) || p.check(TOKEN_NUMBER) {
		interval.Value = &Literal{Value: p.token.Literal}
		p.nextToken()
	} else {
		interval.Value = p.parseParenExpr()
	}
	if p.check(TOKEN_IDENT) && isIntervalUnit(p.token.Literal) {
		interval.Unit = strings.ToUpper(p.token.Literal)
		p.nextToken()
	}
	return interval
}

func isIntervalUnit(word string) bool {
	switch strings.TrimSuffix(strings.ToLower(word), "s") {
	case "microsecond", "millisecond", "second", "minute", "hour", "day", "week",
		"month", "quarter", "year", "decade", "century", "millennium":
		return true
	}
	return false
}

// parseListExpr parses a list literal [a, b, c].
func (p *Parser) parseListExpr() Expr {
	p.expect(TOKEN_LBRACKET)
	list := &ListExpr{}
	if !p.check(TOKEN_RBRACKET) {
		list.Elems = p.parseExpressionList()
	}
	p.expect(TOKEN_RBRACKET)
	return list
}

// parseStructExpr parses a struct literal {'key': value, ...}.
func (p *Parser) parseStructExpr() Expr {
	p.expect(TOKEN_LBRACE)
	st := &ListExpr{}
	for !p.check(TOKEN_RBRACE) {
		if !p.check(TOKEN_IDENT) && !p.check(TOKEN_STRING) {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "struct key"))
			return st
		}
		p.nextToken()
		p.expect(TOKEN_COLON)
		st.Elems = append(st.Elems, p.parseExpression())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	p.expect(TOKEN_RBRACE)
	return st
}
