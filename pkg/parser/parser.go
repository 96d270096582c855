// Package parser provides SQL parsing and table dependency extraction for
// model SQL.
//
// # Usage
//
//	tables, err := parser.ExtractTables("SELECT * FROM raw_users u JOIN orders o ON u.id = o.user_id")
//	if err != nil {
//	    // handle *parser.ParseError
//	}
//
// # Grammar Overview
//
// The parser implements a recursive descent parser for the query subset of
// the DuckDB dialect:
//
//	statement     → [WITH cte_list] query_body
//	query_body    → query_term [(UNION|INTERSECT|EXCEPT) [ALL|DISTINCT] query_body]
//	query_term    → select_core | VALUES row_list | "(" statement ")"
//	select_core   → SELECT [DISTINCT] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//	                [WINDOW window_list] [QUALIFY expr] [ORDER BY order_list]
//	                [LIMIT expr] [OFFSET expr]
//
// See each file for detailed grammar rules for that section.
package parser

import (
	"fmt"
	"strings"
)

// Parser parses SQL into an AST.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	peek2  Token // second lookahead token
	errors []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{
		lexer: NewLexer(sql),
	}
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single query statement and returns its AST.
// A trailing semicolon is allowed; anything after it is an error.
// Statements that are not queries fail with *NotQueryError.
func Parse(sql string) (*SelectStmt, error) {
	p := NewParser(sql)

	if p.check(TOKEN_EOF) {
		p.addError(ErrEmptyStatement)
		return nil, p.firstError()
	}
	if kw, ok := p.nonQueryKeyword(); ok {
		return nil, &NotQueryError{Keyword: kw, Pos: p.token.Pos}
	}

	stmt := p.parseStatement()

	terminated := false
	for p.match(TOKEN_SEMI) {
		terminated = true
	}
	if !p.check(TOKEN_EOF) {
		if terminated {
			p.addError(ErrMultipleStatements)
		} else {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "end of statement"))
		}
	}

	if err := p.firstError(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// NotQueryError reports a statement that parses as something other than a query.
type NotQueryError struct {
	Keyword string
	Pos     Position
}

func (e *NotQueryError) Error() string {
	return fmt.Sprintf("%s statement is not a query", e.Keyword)
}

// nonQueryStatements are leading keywords of statements that never produce a result set.
var nonQueryStatements = map[string]bool{
	"alter": true, "analyze": true, "attach": true, "begin": true, "call": true,
	"checkpoint": true, "comment": true, "commit": true, "copy": true, "create": true,
	"deallocate": true, "delete": true, "describe": true, "detach": true, "drop": true,
	"execute": true, "explain": true, "export": true, "grant": true, "import": true,
	"insert": true, "install": true, "load": true, "merge": true, "pragma": true,
	"prepare": true, "reset": true, "revoke": true, "rollback": true, "set": true,
	"show": true, "summarize": true, "truncate": true, "update": true, "use": true,
	"vacuum": true,
}

func (p *Parser) nonQueryKeyword() (string, bool) {
	if p.token.Type != TOKEN_IDENT || p.token.Quoted {
		return "", false
	}
	word := strings.ToLower(p.token.Literal)
	if nonQueryStatements[word] {
		return strings.ToUpper(word), true
	}
	return "", false
}

// ---------- Token Helpers ----------

// nextToken advances to the next token. After the first error the parser
// only sees EOF so every loop unwinds.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	if len(p.errors) > 0 {
		p.peek2 = Token{Type: TOKEN_EOF, Pos: p.peek2.Pos}
		return
	}
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), t))
	return false
}

// isWord reports whether tok is the unquoted non-reserved word w (lowercase).
func isWord(tok Token, w string) bool {
	return tok.Type == TOKEN_IDENT && !tok.Quoted && strings.EqualFold(tok.Literal, w)
}

// checkWord returns true if the current token is the non-reserved word w.
func (p *Parser) checkWord(w string) bool {
	return isWord(p.token, w)
}

// matchWord consumes the current token if it is the non-reserved word w.
func (p *Parser) matchWord(w string) bool {
	if p.checkWord(w) {
		p.nextToken()
		return true
	}
	return false
}

// addError adds a parse error at the current token.
func (p *Parser) addError(msg string) {
	if len(p.errors) > 0 {
		return
	}
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: msg,
	})
	p.token = Token{Type: TOKEN_EOF, Pos: p.token.Pos}
	p.peek = p.token
	p.peek2 = p.token
}

// firstError returns the earliest error, preferring lexical errors.
func (p *Parser) firstError() error {
	if errs := p.lexer.Errors(); len(errs) > 0 {
		return errs[0]
	}
	if len(p.errors) > 0 {
		return p.errors[0]
	}
	return nil
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TOKEN_EOF:
		return "end of input"
	case TOKEN_IDENT, TOKEN_NUMBER, TOKEN_ILLEGAL:
		return fmt.Sprintf("%q", tok.Literal)
	case TOKEN_STRING:
		return fmt.Sprintf("'%s'", tok.Literal)
	default:
		return tok.Type.String()
	}
}

// ---------- Keyword Helpers ----------

// joinWords are non-reserved words that may start a join.
var joinWords = map[string]bool{
	"semi":       true,
	"anti":       true,
	"asof":       true,
	"positional": true,
}

// canBeAlias reports whether the current token may be an implicit alias.
func (p *Parser) canBeAlias() bool {
	if p.token.Type != TOKEN_IDENT {
		return false
	}
	if p.token.Quoted {
		return true
	}
	word := strings.ToLower(p.token.Literal)
	if (word == "pivot" || word == "unpivot") && p.atPivot() {
		return false
	}
	if joinWords[word] {
		switch p.peek.Type {
		case TOKEN_JOIN, TOKEN_LEFT, TOKEN_RIGHT, TOKEN_INNER, TOKEN_FULL:
			return false
		}
	}
	return word != "tablesample"
}

// parseAlias parses [AS] identifier [(column, ...)].
func (p *Parser) parseAlias() string {
	alias := ""
	if p.match(TOKEN_AS) {
		if !p.check(TOKEN_IDENT) {
			p.addError("expected alias after AS")
			return ""
		}
		alias = p.token.Literal
		p.nextToken()
	} else if p.canBeAlias() {
		alias = p.token.Literal
		p.nextToken()
	}

	// Column alias list: t(a, b)
	if alias != "" && p.check(TOKEN_LPAREN) {
		p.parseIdentList()
	}
	return alias
}

// parseIdentList parses "(" identifier ("," identifier)* ")".
func (p *Parser) parseIdentList() []string {
	p.expect(TOKEN_LPAREN)
	var names []string
	for {
		if !p.check(TOKEN_IDENT) {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "identifier"))
			return names
		}
		names = append(names, p.token.Literal)
		p.nextToken()
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	p.expect(TOKEN_RPAREN)
	return names
}
