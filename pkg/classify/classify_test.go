package classify_test

import (
	"testing"

	"github.com/leapstack-labs/daxport/pkg/classify"
	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		status    classify.Status
		functions []string
	}{
		{
			name:   "plain aggregate",
			input:  "SUM(Sales[Amount])",
			status: classify.Translatable,
		},
		{
			name:      "denied function nested in translatable call",
			input:     "SUM(SUMMARIZE(Sales, Sales[Region]))",
			status:    classify.Unsupported,
			functions: []string{"SUMMARIZE"},
		},
		{
			name:      "path",
			input:     "PATH(Employee[ID], Employee[ParentID])",
			status:    classify.Unsupported,
			functions: []string{"PATH"},
		},
		{
			name:      "inside variable initializer",
			input:     "VAR t = SUMX(Sales, Sales[Qty]) RETURN t + EARLIER(Sales[Qty])",
			status:    classify.Unsupported,
			functions: []string{"SUMX", "EARLIER"},
		},
		{
			name:      "post-order discovery",
			input:     "CALCULATE(SUM(S[a]), ALL(S), FILTER(VALUES(S[c]), TRUE()))",
			status:    classify.Unsupported,
			functions: []string{"ALL", "VALUES"},
		},
		{
			name:      "inner before outer",
			input:     "COUNTROWS(TOPN(5, ADDCOLUMNS(S, \"x\", 1), [x]))",
			status:    classify.Unsupported,
			functions: []string{"ADDCOLUMNS", "TOPN"},
		},
		{
			name:   "approximations are not blocked",
			input:  "CALCULATE(SUM(S[a]), FILTER(S, S[b] > 1))",
			status: classify.Translatable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := dax.Parse(tt.input)
			require.NoError(t, err)

			v := classify.Classify(expr, rules.Default())
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, tt.functions, v.Functions())
			assert.Equal(t, tt.status == classify.Translatable, v.Translatable())
		})
	}
}

func TestClassifyRecordsEveryOccurrence(t *testing.T) {
	expr, err := dax.Parse("SUMX(S, S[a]) + SUMX(S, S[b])")
	require.NoError(t, err)

	v := classify.Classify(expr, nil)
	require.Len(t, v.Reasons, 2)
	assert.NotSame(t, v.Reasons[0].Node, v.Reasons[1].Node)
	assert.Equal(t, rules.Iterator, v.Reasons[0].Category)
	assert.Equal(t, []string{"SUMX"}, v.Functions())
	assert.Equal(t, "unsupported: SUMX", v.String())
}

func TestClassifyConfiguredDenylist(t *testing.T) {
	expr, err := dax.Parse(`FORMAT(Sales[Date], "yyyy")`)
	require.NoError(t, err)

	assert.True(t, classify.Classify(expr, rules.Default()).Translatable())

	v := classify.Classify(expr, rules.Default().WithDenied("FORMAT"))
	require.False(t, v.Translatable())
	assert.Equal(t, rules.Configured, v.Reasons[0].Category)
	assert.Equal(t, "translatable", classify.Translatable.String())
}
