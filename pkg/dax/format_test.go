package dax_test

import (
	"testing"

	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`if(a>0,'T'[c],"s")`, `IF(a > 0, T[c], "s")`},
		{`'My T'[c] & [Total]`, `'My T'[c] & [Total]`},
		{`VAR x = 1 VAR y = 2 RETURN x+y`, `VAR x = 1 VAR y = 2 RETURN x + y`},
		{`NOT (a)`, `NOT (a)`},
		{`-x`, `-x`},
		{`"say ""hi"""`, `"say ""hi"""`},
		{`BLANK()`, `BLANK()`},
		{`CALCULATE(SUM(S[a]), 'Dates')`, `CALCULATE(SUM(S[a]), 'Dates')`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := dax.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dax.Format(expr))
		})
	}
}

func TestFormatReparses(t *testing.T) {
	inputs := []string{
		"SUM(IF(A[x]>0, A[x], 0))",
		"VAR a = 1 VAR b = a + 1 RETURN b * (a - 1)",
		`DIVIDE(SUM(S[Amount]), COUNTROWS(S), BLANK()) & " units"`,
		"'Sales Table'[Net]]Amount] <> 0 || NOT ISBLANK([Margin])",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first, err := dax.Parse(input)
			require.NoError(t, err)

			second, err := dax.Parse(dax.Format(first))
			require.NoError(t, err)
			assert.Equal(t, dax.Dump(first), dax.Dump(second))
		})
	}
}
