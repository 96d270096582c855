package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_Tokens(t *testing.T) {
	tokens := Tokenize(`SELECT a.b, 'it''s', "Quoted ""x""", 1.5e3, $1 FROM t WHERE x <> 2 AND y::int >= .5 -- tail`)

	want := []struct {
		typ     TokenType
		literal string
	}{
		{TOKEN_SELECT, "SELECT"},
		{TOKEN_IDENT, "a"},
		{TOKEN_DOT, "."},
		{TOKEN_IDENT, "b"},
		{TOKEN_COMMA, ","},
		{TOKEN_STRING, "it's"},
		{TOKEN_COMMA, ","},
		{TOKEN_IDENT, `Quoted "x"`},
		{TOKEN_COMMA, ","},
		{TOKEN_NUMBER, "1.5e3"},
		{TOKEN_COMMA, ","},
		{TOKEN_PARAM, "$1"},
		{TOKEN_FROM, "FROM"},
		{TOKEN_IDENT, "t"},
		{TOKEN_WHERE, "WHERE"},
		{TOKEN_IDENT, "x"},
		{TOKEN_NE, "<>"},
		{TOKEN_NUMBER, "2"},
		{TOKEN_AND, "AND"},
		{TOKEN_IDENT, "y"},
		{TOKEN_DCOLON, "::"},
		{TOKEN_IDENT, "int"},
		{TOKEN_GE, ">="},
		{TOKEN_NUMBER, ".5"},
		{TOKEN_EOF, ""},
	}

	require.Len(t, tokens, len(want))
	for i, w := range want {
		assert.Equal(t, w.typ, tokens[i].Type, "token %d type", i)
		assert.Equal(t, w.literal, tokens[i].Literal, "token %d literal", i)
	}
	assert.True(t, tokens[7].Quoted)
}

func TestLexer_Positions(t *testing.T) {
	tokens := Tokenize("SELECT\n  id\nFROM users")

	require.GreaterOrEqual(t, len(tokens), 4)
	assert.Equal(t, Position{Line: 1, Column: 1, Offset: 0}, tokens[0].Pos)
	assert.Equal(t, 2, tokens[1].Pos.Line)
	assert.Equal(t, 3, tokens[1].Pos.Column)
	assert.Equal(t, 3, tokens[2].Pos.Line)
}

func TestLexer_UnterminatedComment(t *testing.T) {
	l := NewLexer("SELECT 1 /* never closed")
	for l.NextToken().Type != TOKEN_EOF {
	}

	require.Len(t, l.Errors(), 1)
	assert.Contains(t, l.Errors()[0].Error(), ErrUnterminatedComment)
}

func TestTokenType_String(t *testing.T) {
	assert.Equal(t, "SELECT", TOKEN_SELECT.String())
	assert.Equal(t, ")", TOKEN_RPAREN.String())
	assert.True(t, TOKEN_QUALIFY.IsKeyword())
	assert.False(t, TOKEN_IDENT.IsKeyword())
	assert.Equal(t, TOKEN_IDENT, LookupIdent("users"))
}
