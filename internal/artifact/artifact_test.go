package artifact_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leapstack-labs/daxport/internal/artifact"
	"github.com/leapstack-labs/daxport/internal/model"
	"github.com/leapstack-labs/daxport/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesModel() *model.Model {
	return &model.Model{
		Name: "sales model",
		Tables: []model.Table{
			{
				Name:    "Sales",
				Columns: []model.Column{{Name: "OrderID"}, {Name: "Amount"}},
				CalculatedColumns: []model.CalculatedColumn{
					{Table: "Sales", Name: "Margin", Expression: "Sales[Amount] - Sales[Cost]"},
					{Table: "Sales", Name: "Region", Expression: "RELATED(Customers[Region])"},
				},
				Measures: []model.Measure{
					{Table: "Sales", Name: "Total", Expression: "SUM(Sales[Amount])"},
					{Table: "Sales", Name: "Top", Expression: "TOPN(5, Sales, [Total])"},
					{Table: "Sales", Name: "Broken", Expression: `"oops`},
				},
			},
			{
				Name:    "Customers",
				Columns: []model.Column{{Name: "CustomerID"}, {Name: "Region"}},
			},
		},
		Relationships: []model.Relationship{
			{FromTable: "Sales", FromColumn: "CustomerID", ToTable: "Customers", ToColumn: "CustomerID", Active: true},
		},
	}
}

func build(t *testing.T, cfg artifact.Config, m *model.Model) *artifact.Artifacts {
	t.Helper()
	cfg.Logger = testutil.NewTestLogger(t)
	art, err := artifact.New(cfg).Build(context.Background(), m)
	require.NoError(t, err)
	return art
}

func TestBuildOrdersDimensionsFirst(t *testing.T) {
	art := build(t, artifact.Config{}, salesModel())

	require.Len(t, art.Views, 2)
	assert.Equal(t, "Customers", art.Views[0].Table)
	assert.Equal(t, "Sales", art.Views[1].Table)
	assert.Empty(t, art.Views[0].Slots)
	assert.Len(t, art.Views[1].Slots, 5)

	assert.Equal(t, artifact.Summary{Tables: 2, Translated: 3, Unsupported: 1, Failed: 1, Flagged: 1}, art.Summary())
	assert.Equal(t, 5, art.Summary().Total())
}

func TestMaterializedScript(t *testing.T) {
	art := build(t, artifact.Config{Materialize: true}, salesModel())

	want := strings.Join([]string{
		"-- Semantic View for: Sales",
		"-- Columns: OrderID, Amount",
		"-- review: Region: RELATED(Customers[Region]): the join to the related table must be established in the view",
		"-- review: Region: JOIN Customers ON Sales.CustomerID = Customers.CustomerID",
		"CREATE OR REPLACE VIEW main.semantic.Sales_semantic AS",
		"SELECT",
		"    OrderID,",
		"    Amount,",
		"    Sales.Amount - Sales.Cost AS Margin,",
		"    Customers.Region AS Region,",
		"    SUM(Sales.Amount) AS Total",
		"    /* manual implementation required for Top: unsupported functions: TOPN */",
		"    /* manual implementation required for Broken: lexer error at line 1, column 1 (offset 0): unterminated string literal */",
		"FROM main.raw.Sales;",
		"",
	}, "\n")
	assert.Equal(t, want, art.Script(art.Views[1]))
}

func TestMaterializedScriptNames(t *testing.T) {
	m := &model.Model{Tables: []model.Table{{
		Name:    "Order Lines",
		Columns: []model.Column{{Name: "Line No"}},
	}}}
	art := build(t, artifact.Config{Materialize: true, Catalog: "prod", Schema: "bi", SourceSchema: "bronze"}, m)

	script := art.Script(art.Views[0])
	assert.Contains(t, script, "CREATE OR REPLACE VIEW prod.bi.`Order Lines_semantic` AS\nSELECT\n    `Line No`\nFROM prod.bronze.`Order Lines`;\n")
}

func TestMaterializedScriptWithoutItems(t *testing.T) {
	m := &model.Model{Tables: []model.Table{{
		Name:     "Calc",
		Measures: []model.Measure{{Table: "Calc", Name: "x", Expression: "SUMX(Calc, 1)"}},
	}}}
	art := build(t, artifact.Config{Materialize: true}, m)

	assert.Contains(t, art.Script(art.Views[0]),
		"SELECT\n    *\n    /* manual implementation required for x: unsupported functions: SUMX */\nFROM main.raw.Calc;")
}

func TestStubScript(t *testing.T) {
	art := build(t, artifact.Config{Materialize: false}, salesModel())
	script := art.Script(art.Views[1])

	assert.NotContains(t, script, "CREATE")
	assert.Contains(t, script, "-- Margin = Sales.Amount - Sales.Cost\n")
	assert.Contains(t, script, "-- Total = SUM(Sales.Amount)\n")
	assert.Contains(t, script, "-- Top requires manual implementation: unsupported functions: TOPN\n")
	assert.Contains(t, script, "-- Broken requires manual implementation: lexer error")
}

func TestEverySlotProducesOutput(t *testing.T) {
	for _, materialize := range []bool{true, false} {
		art := build(t, artifact.Config{Materialize: materialize}, salesModel())
		var buf bytes.Buffer
		require.NoError(t, art.WriteSQL(&buf))

		for _, slot := range art.Slots() {
			assert.Contains(t, buf.String(), slot.Expression.Name)
		}
		assert.Equal(t, 2, strings.Count(buf.String(), "manual implementation"))
		assert.True(t, strings.HasPrefix(buf.String(), "-- Semantic layer generated from sales model\n"))
	}
}

func TestPlaceholderCannotCloseEarly(t *testing.T) {
	m := &model.Model{Tables: []model.Table{{
		Name:     "T",
		Columns:  []model.Column{{Name: "a"}},
		Measures: []model.Measure{{Table: "T", Name: "x*/y", Expression: "PATH(T[a], T[b])"}},
	}}}
	art := build(t, artifact.Config{Materialize: true}, m)

	script := art.Script(art.Views[0])
	assert.Contains(t, script, "/* manual implementation required for x* /y: unsupported functions: PATH */")
	assert.Equal(t, 1, strings.Count(script, "*/"))
}

type fakeChecker struct {
	calls []string
}

func (f *fakeChecker) Check(_ context.Context, table, sql string) error {
	f.calls = append(f.calls, table+": "+sql)
	if strings.Contains(sql, "Customers.") {
		return errors.New(`Binder Error: Referenced table "Customers" not found`)
	}
	return nil
}

func TestBuildWithChecker(t *testing.T) {
	checker := &fakeChecker{}
	art := build(t, artifact.Config{Checker: checker, Workers: 1}, salesModel())

	assert.Equal(t, []string{
		"Sales: Sales.Amount - Sales.Cost",
		"Sales: Customers.Region",
		"Sales: SUM(Sales.Amount)",
	}, checker.calls)

	region := art.Views[1].Slots[1]
	require.Len(t, region.Review, 3)
	assert.Equal(t, `dry run: Binder Error: Referenced table "Customers" not found`, region.Review[2])
}

func TestBuildMissingRelationship(t *testing.T) {
	m := salesModel()
	m.Relationships = nil
	art := build(t, artifact.Config{}, m)

	region := art.Views[1].Slots[1]
	assert.Contains(t, region.Review, "no relationship between Sales and Customers")
}

func TestBuildRelationshipCycle(t *testing.T) {
	m := salesModel()
	m.Relationships = append(m.Relationships, model.Relationship{
		FromTable: "Customers", FromColumn: "CustomerID", ToTable: "Sales", ToColumn: "CustomerID", Active: true,
	})
	logger, logs := testutil.NewCaptureLogger(slog.LevelWarn)

	art, err := artifact.New(artifact.Config{Logger: logger}).Build(context.Background(), m)
	require.NoError(t, err)

	// Model order is kept
	require.Len(t, art.Views, 2)
	assert.Equal(t, "Sales", art.Views[0].Table)
	assert.Equal(t, "Customers", art.Views[1].Table)

	lines := logs.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "relationship cycle")
	assert.Contains(t, lines[0], "cycle detected")
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := artifact.New(artifact.Config{}).Build(ctx, salesModel())
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriteNotebook(t *testing.T) {
	art := build(t, artifact.Config{Materialize: true, Output: artifact.FormatNotebook}, salesModel())

	var buf bytes.Buffer
	require.NoError(t, art.Write(&buf))

	var nb struct {
		NBFormat      int `json:"nbformat"`
		NBFormatMinor int `json:"nbformat_minor"`
		Cells         []struct {
			ID             string   `json:"id"`
			CellType       string   `json:"cell_type"`
			Source         []string `json:"source"`
			ExecutionCount *int     `json:"execution_count"`
		} `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &nb))

	assert.Equal(t, 4, nb.NBFormat)
	assert.Equal(t, 5, nb.NBFormatMinor)
	require.Len(t, nb.Cells, 3)

	assert.Equal(t, "markdown", nb.Cells[0].CellType)
	assert.Equal(t, "# Sales Model Semantic Layer\n", nb.Cells[0].Source[0])
	assert.Contains(t, strings.Join(nb.Cells[0].Source, ""), "2 tables, 5 expressions: 3 translated, 1 unsupported, 1 failed, 1 flagged for review.")

	sales := nb.Cells[2]
	assert.Equal(t, "code", sales.CellType)
	assert.Nil(t, sales.ExecutionCount)
	assert.Equal(t, "%sql\n", sales.Source[0])
	assert.Equal(t, "-- Semantic View for: Sales\n", sales.Source[1])
	assert.Equal(t, "FROM main.raw.Sales;", sales.Source[len(sales.Source)-1])

	ids := map[string]bool{}
	for _, c := range nb.Cells {
		ids[c.ID] = true
	}
	assert.Len(t, ids, 3)

	var again bytes.Buffer
	require.NoError(t, art.WriteNotebook(&again))
	assert.Equal(t, buf.String(), again.String())
}

func TestWriteUnknownFormat(t *testing.T) {
	art := build(t, artifact.Config{Output: "pdf"}, salesModel())
	assert.EqualError(t, art.Write(&bytes.Buffer{}), `unknown output format "pdf"`)
}
