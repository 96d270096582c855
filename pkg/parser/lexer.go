package parser

import (
	"strings"
	"unicode"
)

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)

	errors []error
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// Errors returns lexical errors collected so far.
func (l *Lexer) Errors() []error {
	return l.errors
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) currentPos() Position {
	return Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	var tok Token

	switch l.ch {
	case 0:
		if l.pos < len(l.input) {
			// Embedded NUL byte
			tok = l.newToken(TOKEN_ILLEGAL, "\x00", pos)
			break
		}
		return Token{Type: TOKEN_EOF, Pos: pos}
	case '+':
		tok = l.newToken(TOKEN_PLUS, "+", pos)
	case '-':
		if l.peekChar() == '>' {
			l.readChar()
			if l.peekChar() == '>' {
				l.readChar()
				tok = l.newToken(TOKEN_ARROW, "->>", pos)
			} else {
				tok = l.newToken(TOKEN_ARROW, "->", pos)
			}
		} else {
			tok = l.newToken(TOKEN_MINUS, "-", pos)
		}
	case '*':
		tok = l.newToken(TOKEN_STAR, "*", pos)
	case '/':
		tok = l.newToken(TOKEN_SLASH, "/", pos)
	case '%':
		tok = l.newToken(TOKEN_PERCENT, "%", pos)
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.newToken(TOKEN_EQ, "==", pos)
		} else {
			tok = l.newToken(TOKEN_EQ, "=", pos)
		}
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok = l.newToken(TOKEN_LE, "<=", pos)
		case '>':
			l.readChar()
			tok = l.newToken(TOKEN_NE, "<>", pos)
		default:
			tok = l.newToken(TOKEN_LT, "<", pos)
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.newToken(TOKEN_GE, ">=", pos)
		} else {
			tok = l.newToken(TOKEN_GT, ">", pos)
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.newToken(TOKEN_NE, "!=", pos)
		} else {
			tok = l.newToken(TOKEN_ILLEGAL, "!", pos)
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok = l.newToken(TOKEN_DPIPE, "||", pos)
		} else {
			tok = l.newToken(TOKEN_ILLEGAL, "|", pos)
		}
	case ':':
		if l.peekChar() == ':' {
			l.readChar()
			tok = l.newToken(TOKEN_DCOLON, "::", pos)
		} else {
			tok = l.newToken(TOKEN_COLON, ":", pos)
		}
	case '.':
		if isDigit(l.peekChar()) {
			return Token{Type: TOKEN_NUMBER, Literal: l.readNumber(), Pos: pos}
		}
		tok = l.newToken(TOKEN_DOT, ".", pos)
	case ',':
		tok = l.newToken(TOKEN_COMMA, ",", pos)
	case ';':
		tok = l.newToken(TOKEN_SEMI, ";", pos)
	case '(':
		tok = l.newToken(TOKEN_LPAREN, "(", pos)
	case ')':
		tok = l.newToken(TOKEN_RPAREN, ")", pos)
	case '[':
		tok = l.newToken(TOKEN_LBRACKET, "[", pos)
	case ']':
		tok = l.newToken(TOKEN_RBRACKET, "]", pos)
	case '{':
		tok = l.newToken(TOKEN_LBRACE, "{", pos)
	case '}':
		tok = l.newToken(TOKEN_RBRACE, "}", pos)
	case '?':
		tok = l.newToken(TOKEN_PARAM, "?", pos)
	case '$':
		if isDigit(l.peekChar()) {
			start := l.pos
			l.readChar()
			for isDigit(l.ch) {
				l.readChar()
			}
			return Token{Type: TOKEN_PARAM, Literal: l.input[start:l.pos], Pos: pos}
		}
		tok = l.newToken(TOKEN_ILLEGAL, "$", pos)
	case '\'':
		return Token{Type: TOKEN_STRING, Literal: l.readString(pos), Pos: pos}
	case '"':
		return Token{Type: TOKEN_IDENT, Literal: l.readQuoted('"', pos), Pos: pos, Quoted: true}
	case '`':
		return Token{Type: TOKEN_IDENT, Literal: l.readQuoted('`', pos), Pos: pos, Quoted: true}
	default:
		switch {
		case isLetter(l.ch) || l.ch == '_':
			literal := l.readIdentifier()
			return Token{Type: LookupIdent(strings.ToLower(literal)), Literal: literal, Pos: pos}
		case isDigit(l.ch):
			return Token{Type: TOKEN_NUMBER, Literal: l.readNumber(), Pos: pos}
		default:
			tok = l.newToken(TOKEN_ILLEGAL, string(l.ch), pos)
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) newToken(tokenType TokenType, literal string, pos Position) Token {
	return Token{Type: tokenType, Literal: literal, Pos: pos}
}

// skipWhitespaceAndComments skips whitespace, line comments and block comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' {
			l.readChar()
		}

		// Line comment (-- ...)
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}

		// Block comment (/* ... */)
		if l.ch == '/' && l.peekChar() == '*' {
			start := l.currentPos()
			l.readChar() // skip '/'
			l.readChar() // skip '*'
			closed := false
			for l.ch != 0 {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar() // skip '*'
					l.readChar() // skip '/'
					closed = true
					break
				}
				l.readChar()
			}
			if !closed {
				l.errors = append(l.errors, &LexError{Pos: start, Message: ErrUnterminatedComment})
			}
			continue
		}

		break
	}
}

// readString reads a single-quoted string literal.
// Handles doubled single quotes as escape: 'it''s' -> it's
func (l *Lexer) readString(start Position) string {
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.ch == 0 && l.pos >= len(l.input) {
			l.errors = append(l.errors, &LexError{Pos: start, Message: ErrUnterminatedString})
			break
		}
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				result.WriteByte('\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // skip closing quote
			break
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
	return result.String()
}

// readQuoted reads a quoted identifier. A doubled quote is an escaped quote.
func (l *Lexer) readQuoted(quote byte, start Position) string {
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.ch == 0 && l.pos >= len(l.input) {
			l.errors = append(l.errors, &LexError{Pos: start, Message: ErrUnterminatedIdent})
			break
		}
		if l.ch == quote {
			if l.peekChar() == quote {
				result.WriteByte(quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // skip closing quote
			break
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
	return result.String()
}

// readIdentifier reads an unquoted identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *Lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	// Exponent part (e.g., 1e10, 1E-5)
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar() // skip 'e' or 'E'
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return ch >= 0x80 || unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input, ending with TOKEN_EOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF {
			break
		}
	}
	return tokens
}
