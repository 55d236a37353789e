package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenIs(t *testing.T) {
	tok := Token{Kind: Identifier, Text: "Var"}

	assert.True(t, tok.Is(Identifier, "VAR"))
	assert.True(t, tok.Is(Identifier, ""))
	assert.False(t, tok.Is(Identifier, "RETURN"))
	assert.False(t, tok.Is(FunctionName, "VAR"))
}

func TestTokenIsOperator(t *testing.T) {
	tok := Token{Kind: Operator, Text: "&&"}

	assert.True(t, tok.IsOperator("||", "&&"))
	assert.False(t, tok.IsOperator("&"))
	assert.False(t, Token{Kind: Identifier, Text: "&&"}.IsOperator("&&"))
}

func TestTokenString(t *testing.T) {
	tests := []struct {
		tok  Token
		want string
	}{
		{Token{Kind: EOF}, "end of expression"},
		{Token{Kind: ColumnRef, Table: "Sales", Column: "Amount"}, "Sales[Amount]"},
		{Token{Kind: ColumnRef, Column: "Total"}, "[Total]"},
		{Token{Kind: StringLiteral, Text: "a"}, `"a"`},
		{Token{Kind: TableRef, Text: "Sales Table"}, "'Sales Table'"},
		{Token{Kind: Comma}, `","`},
		{Token{Kind: Operator, Text: "<>"}, `operator "<>"`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.String())
		})
	}
}

func TestPositionAndSpan(t *testing.T) {
	assert.Equal(t, "-", Position{}.String())
	assert.Equal(t, "2:5", Position{Line: 2, Column: 5}.String())

	src := "SUM(Sales[Amount])"
	span := Span{Start: Position{Line: 1, Column: 5, Offset: 4}, End: Position{Line: 1, Column: 18, Offset: 17}}
	assert.Equal(t, "Sales[Amount]", span.Text(src))
	assert.True(t, span.Contains(4))
	assert.False(t, span.Contains(17))
	assert.Empty(t, Span{Start: Position{Offset: 5}, End: Position{Offset: 2}}.Text(src))
}
