package dax_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dump(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestParseStructure(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "multiplication binds tighter",
			input: "1 + 2 * 3",
			want: dump(
				"Binary +",
				"  Literal number 1",
				"  Binary *",
				"    Literal number 2",
				"    Literal number 3",
			),
		},
		{
			name:  "left associative",
			input: "1 - 2 - 3",
			want: dump(
				"Binary -",
				"  Binary -",
				"    Literal number 1",
				"    Literal number 2",
				"  Literal number 3",
			),
		},
		{
			name:  "and binds tighter than or",
			input: "a && b || c",
			want: dump(
				"Binary ||",
				"  Binary &&",
				"    Ident a",
				"    Ident b",
				"  Ident c",
			),
		},
		{
			name:  "word operators",
			input: "a or b and c",
			want: dump(
				"Binary OR",
				"  Ident a",
				"  Binary AND",
				"    Ident b",
				"    Ident c",
			),
		},
		{
			name:  "prefix not over comparison",
			input: "NOT a = b",
			want: dump(
				"Unary NOT",
				"  Binary =",
				"    Ident a",
				"    Ident b",
			),
		},
		{
			name:  "unary minus binds tighter than power",
			input: "-2 ^ 2",
			want: dump(
				"Binary ^",
				"  Unary -",
				"    Literal number 2",
				"  Literal number 2",
			),
		},
		{
			name:  "concatenation below comparison",
			input: `"a" & "b" = "ab"`,
			want: dump(
				"Binary =",
				"  Binary &",
				"    Literal string a",
				"    Literal string b",
				"  Literal string ab",
			),
		},
		{
			name:  "nested if inside aggregate",
			input: "SUM(IF(A[x]>0, A[x], 0))",
			want: dump(
				"Call SUM",
				"  If",
				"    Binary >",
				"      ColumnRef A[x]",
				"      Literal number 0",
				"    ColumnRef A[x]",
				"    Literal number 0",
			),
		},
		{
			name:  "parentheses are kept",
			input: "(1 + 2) * 3",
			want: dump(
				"Binary *",
				"  Paren",
				"    Binary +",
				"      Literal number 1",
				"      Literal number 2",
				"  Literal number 3",
			),
		},
		{
			name:  "boolean and blank literals",
			input: "IF(TRUE(), BLANK(), false)",
			want: dump(
				"If",
				"  Literal bool TRUE",
				"  Literal blank BLANK",
				"  Literal bool FALSE",
			),
		},
		{
			name:  "space before call paren",
			input: "sum (T[c])",
			want: dump(
				"Call SUM",
				"  ColumnRef T[c]",
			),
		},
		{
			name:  "function names are upper-cased",
			input: "DateAdd(Dates[Date], -1, MONTH)",
			want: dump(
				"Call DATEADD",
				"  ColumnRef Dates[Date]",
				"  Unary -",
				"    Literal number 1",
				"  Ident MONTH",
			),
		},
		{
			name:  "variable binding",
			input: "VAR x = A[v] RETURN x + 1",
			want: dump(
				"Var x",
				"  ColumnRef A[v]",
				"  Binary +",
				"    Ident x",
				"    Literal number 1",
			),
		},
		{
			name:  "nested variable bindings",
			input: "VAR a = 1 VAR b = a + 1 RETURN b",
			want: dump(
				"Var a",
				"  Literal number 1",
				"  Var b",
				"    Binary +",
				"      Ident a",
				"      Literal number 1",
				"    Ident b",
			),
		},
		{
			name:  "var block as an argument",
			input: "ROUND(VAR r = T[a] / T[b] RETURN r * 100, 2)",
			want: dump(
				"Call ROUND",
				"  Var r",
				"    Binary /",
				"      ColumnRef T[a]",
				"      ColumnRef T[b]",
				"    Binary *",
				"      Ident r",
				"      Literal number 100",
				"  Literal number 2",
			),
		},
		{
			name:  "searched case",
			input: "CASE WHEN S.a > 0 THEN S.a ELSE 0 END",
			want: dump(
				"Case",
				"  Binary >",
				"    ColumnRef S[a]",
				"    Literal number 0",
				"  ColumnRef S[a]",
				"  Literal number 0",
			),
		},
		{
			name:  "simple case",
			input: "CASE S.k WHEN 1 THEN 10 END",
			want: dump(
				"Case",
				"  ColumnRef S[k]",
				"  Literal number 1",
				"  Literal number 10",
			),
		},
		{
			name:  "extract",
			input: "EXTRACT(YEAR FROM D.d)",
			want: dump(
				"Extract YEAR",
				"  ColumnRef D[d]",
			),
		},
		{
			name:  "interval",
			input: "(D.d - INTERVAL 1 YEAR)",
			want: dump(
				"Paren",
				"  Binary -",
				"    ColumnRef D[d]",
				"    Interval 1 YEAR",
			),
		},
		{
			name:  "count distinct",
			input: "COUNT(DISTINCT S.a)",
			want: dump(
				"Call COUNT DISTINCT",
				"  ColumnRef S[a]",
			),
		},
		{
			name:  "count star",
			input: "COUNT(*)",
			want: dump(
				"Call COUNT",
				"  Star",
			),
		},
		{
			name:  "is null",
			input: "S.a IS NOT NULL AND NOT S.b IS NULL",
			want: dump(
				"Binary AND",
				"  IsNull not=true",
				"    ColumnRef S[a]",
				"  Unary NOT",
				"    IsNull not=false",
				"      ColumnRef S[b]",
			),
		},
		{
			name:  "null literal",
			input: "COALESCE(S.a, NULL)",
			want: dump(
				"Call COALESCE",
				"  ColumnRef S[a]",
				"  Literal blank BLANK",
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := dax.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dax.Dump(expr))
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"if with two arguments", "IF(A[x]>0, 1)", "IF expects exactly 3 arguments, got 2"},
		{"if with four arguments", "IF(A[x]>0, 1, 2, 3)", "IF expects exactly 3 arguments, got 4"},
		{"and with one argument", "AND(TRUE())", "AND expects exactly 2 arguments, got 1"},
		{"not with two arguments", "NOT(1, 2)", "NOT expects exactly 1 argument, got 2"},
		{"filter with one argument", "FILTER(Sales)", "FILTER expects exactly 2 arguments, got 1"},
		{"calculate without arguments", "CALCULATE()", "CALCULATE expects at least 1 argument, got 0"},
		{"trailing tokens", "SUM(A[x]) 1", `unexpected number "1" after end of expression`},
		{"unbalanced parens", "(1 + 2", `unexpected end of expression, expected ")"`},
		{"missing argument", "SUM(A[x],)", `unexpected ")" in expression`},
		{"empty input", "", "unexpected end of expression, expected an expression"},
		{"var without equals", "VAR x 1 RETURN x", `unexpected number "1", expected "="`},
		{"var without return", "VAR x = 1", "unexpected end of expression, expected VAR or RETURN"},
		{"stray return", "RETURN 1", `unexpected identifier "RETURN" in expression`},
		{"case without end", "CASE WHEN 1 THEN 2", "unexpected end of expression, expected END"},
		{"case without when", "CASE S.a END", `unexpected identifier "END", expected WHEN`},
		{"is without null", "S.a IS 1", `unexpected number "1", expected NULL`},
		{"distinct with two arguments", "COUNT(DISTINCT S.a, S.b)", "COUNT(DISTINCT ...) expects exactly 1 argument, got 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dax.Parse(tt.input)
			require.Error(t, err)

			var parseErr *dax.ParseError
			require.True(t, errors.As(err, &parseErr), "want *ParseError, got %T: %v", err, err)
			assert.Equal(t, tt.message, parseErr.Message)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := dax.Parse("SUM(A[x],)")
	var parseErr *dax.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 1, parseErr.Pos.Line)
	assert.Equal(t, 10, parseErr.Pos.Column)
	assert.Equal(t, `parse error at line 1, column 10: unexpected ")" in expression`, err.Error())
}

type fixedArity map[string][2]int

func (f fixedArity) CheckArity(name string, got int) (string, bool) {
	r, ok := f[name]
	if !ok || (got >= r[0] && got <= r[1]) {
		return "", true
	}
	return dax.ArityText(r[0], r[1]), false
}

func TestParseArityChecker(t *testing.T) {
	checker := fixedArity{"LEFT": {2, 2}, "ROUND": {1, 2}}

	_, err := dax.Parse(`LEFT("abc")`)
	require.NoError(t, err, "no checker, no registry arity")

	_, err = dax.Parse(`LEFT("abc")`, dax.WithArityChecker(checker))
	var parseErr *dax.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "LEFT expects exactly 2 arguments, got 1", parseErr.Message)

	_, err = dax.Parse(`ROUND(1, 2, 3)`, dax.WithArityChecker(checker))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROUND expects 1 to 2 arguments, got 3")

	_, err = dax.Parse(`MYFUNC(1, 2, 3)`, dax.WithArityChecker(checker))
	require.NoError(t, err)
}

func TestParseDepthLimit(t *testing.T) {
	deep := strings.Repeat("(", 300) + "1" + strings.Repeat(")", 300)

	_, err := dax.Parse(deep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dax.ErrStackLimitExceeded))

	var limitErr *dax.StackLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, dax.DefaultMaxDepth, limitErr.Limit)

	_, err = dax.Parse(deep, dax.WithMaxDepth(1000))
	require.NoError(t, err)

	calls := strings.Repeat("ABS(", 300) + "1" + strings.Repeat(")", 300)
	_, err = dax.Parse(calls)
	assert.ErrorIs(t, err, dax.ErrStackLimitExceeded)

	// Flat operator chains are not nesting.
	chain := "1" + strings.Repeat(" + Sales[Amount] * 2", 1000)
	expr, err := dax.Parse(chain)
	require.NoError(t, err)
	assert.IsType(t, &dax.BinaryExpr{}, expr)

	_, err = dax.Parse(chain, dax.WithMaxDepth(8))
	require.NoError(t, err)

	_, err = dax.Parse("1" + strings.Repeat(" + (1", 300) + strings.Repeat(")", 300))
	assert.ErrorIs(t, err, dax.ErrStackLimitExceeded)
}

func TestParseSpans(t *testing.T) {
	src := "VAR x = A[v] RETURN x + 1"
	expr, err := dax.Parse(src)
	require.NoError(t, err)

	v, ok := expr.(*dax.VarBinding)
	require.True(t, ok)
	assert.Equal(t, "A[v]", v.Init.Span().Text(src))
	assert.Equal(t, "x + 1", v.Body.Span().Text(src))
	assert.Equal(t, src, v.Span().Text(src))
}

func TestWalkPostOrder(t *testing.T) {
	expr, err := dax.Parse("SUM(IF(a, b, c))")
	require.NoError(t, err)

	var seen []string
	dax.Walk(expr, func(e dax.Expr) {
		switch n := e.(type) {
		case *dax.Ident:
			seen = append(seen, n.Name)
		case *dax.IfExpr:
			seen = append(seen, "IF")
		case *dax.FuncCall:
			seen = append(seen, n.Name)
		}
	})
	assert.Equal(t, []string{"a", "b", "c", "IF", "SUM"}, seen)
}
