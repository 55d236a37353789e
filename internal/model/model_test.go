package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func TestLoadDataModelSchema(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "sales.bim"))
	require.NoError(t, err)

	assert.Equal(t, "SalesModel", m.Name)
	require.Len(t, m.Tables, 2)

	customers, ok := m.Table("customers")
	require.True(t, ok)
	assert.Equal(t, []Column{{Name: "CustomerID", DataType: "int64"}, {Name: "Region", DataType: "string"}}, customers.Columns)

	sales, ok := m.Table("Sales")
	require.True(t, ok)
	assert.Len(t, sales.Columns, 4)
	require.Len(t, sales.CalculatedColumns, 2)
	assert.Equal(t, "Sales[Amount] - Sales[Cost]", sales.CalculatedColumns[0].Expression)
	assert.Equal(t, "IF(Sales[Amount] > 1000,\n    \"large\",\n    \"small\")", sales.CalculatedColumns[1].Expression)
	assert.Equal(t, "Sales", sales.CalculatedColumns[1].Table)

	require.Len(t, sales.Measures, 3)
	assert.Equal(t, Measure{Table: "Sales", Name: "Total Sales", Expression: "SUM(Sales[Amount])"}, sales.Measures[0])
	assert.Equal(t, []Hierarchy{{Name: "Order", Levels: []string{"OrderID"}}}, sales.Hierarchies)

	require.Len(t, m.Relationships, 1)
	rel := m.Relationships[0]
	assert.Equal(t, "Sales", rel.FromTable)
	assert.Equal(t, "Customers", rel.ToTable)
	assert.True(t, rel.Active)
	assert.Equal(t, "oneDirection", rel.Raw["crossFilteringBehavior"])

	assert.Equal(t, Stats{Tables: 2, Columns: 6, Measures: 3, CalculatedColumns: 2, Relationships: 1}, m.Stats())
}

func TestLoadFlatYAML(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "flat.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "flat", m.Name)
	dates, ok := m.Table("Dates")
	require.True(t, ok)
	assert.Equal(t, []Column{{Name: "Date", DataType: "dateTime"}}, dates.Columns)
	require.Len(t, dates.CalculatedColumns, 1)
	assert.Equal(t, "YEAR(Dates[Date]) + 1", dates.CalculatedColumns[0].Expression)
	assert.Equal(t, []string{"Fiscal Year", "Date"}, dates.Hierarchies[0].Levels)

	orders, ok := m.Table("Orders")
	require.True(t, ok)
	assert.Equal(t, "DATEDIFF(Orders[OrderDate], TODAY(), DAY)", orders.CalculatedColumns[0].Expression)

	require.Len(t, m.Relationships, 1)
	assert.False(t, m.Relationships[0].Active)
}

func TestExpressionsOrder(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "sales.bim"))
	require.NoError(t, err)

	var keys []string
	for _, e := range m.Expressions() {
		keys = append(keys, string(e.Kind)+":"+e.Key())
	}
	assert.Equal(t, []string{
		"calculated_column:Sales.Margin",
		"calculated_column:Sales.Size Band",
		"measure:Sales.Total Sales",
		"measure:Sales.Unique Customers",
		"measure:Sales.Top Regions",
	}, keys)
}

func TestParseUTF16(t *testing.T) {
	doc := `{"model": {"tables": [{"name": "Ünits", "measures": [{"name": "n", "expression": "COUNTROWS('Ünits')"}]}]}}`
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(doc)
	require.NoError(t, err)

	m, err := Parse(strings.NewReader(encoded), FormatJSON)
	require.NoError(t, err)
	require.Len(t, m.Tables, 1)
	assert.Equal(t, "Ünits", m.Tables[0].Name)
	assert.Equal(t, "COUNTROWS('Ünits')", m.Tables[0].Measures[0].Expression)
}

func TestParseUTF8BOM(t *testing.T) {
	m, err := Parse(strings.NewReader("\ufeff"+`{"tables": [{"name": "T"}]}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "T", m.Tables[0].Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		format  Format
		message string
	}{
		{"malformed json", `{"tables": [`, FormatJSON, "invalid json"},
		{"malformed yaml", "tables: [\n  - name: a\n - b", FormatYAML, "invalid yaml"},
		{"no tables", `{"model": {}}`, FormatJSON, "model has no tables"},
		{"table not object", `{"tables": [1]}`, FormatJSON, "tables[0]: expected an object"},
		{"missing table name", `{"tables": [{"columns": []}]}`, FormatJSON, "tables[0]: missing table name"},
		{"bad relationship", `{"tables": [], "relationships": ["x"]}`, FormatJSON, "relationships[0]: expected an object"},
		{"unknown format", `{}`, Format("xml"), `unsupported model format "xml"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "model.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model file")

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"model.json", FormatJSON},
		{"Model.BIM", FormatJSON},
		{"export/DataModelSchema", FormatJSON},
		{"model.yaml", FormatYAML},
		{"model.yml", FormatYAML},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatFromPath("notes")
	assert.Error(t, err)
}
