// Package model reads a Power BI semantic model export into normalized
// records: tables with their columns, measures, calculated columns and
// hierarchies, plus the relationships between tables.
//
// Accepted inputs are the DataModelSchema JSON found in .pbit files, a .bim
// model file, the flat {"tables": [...]} shape, and the same documents
// written as YAML.
package model

import "strings"

// Model is a normalized semantic model. It is built once per load and not
// modified afterwards.
type Model struct {
	Name          string
	Tables        []Table
	Relationships []Relationship
}

// Table is one model table.
type Table struct {
	Name              string
	Columns           []Column
	Measures          []Measure
	CalculatedColumns []CalculatedColumn
	Hierarchies       []Hierarchy
}

// Column is a source (non-calculated) column.
type Column struct {
	Name     string
	DataType string
}

// Measure is a named aggregate expression owned by a table.
type Measure struct {
	Table      string
	Name       string
	Expression string
}

// CalculatedColumn is a row-level expression materialized as a column.
type CalculatedColumn struct {
	Table      string
	Name       string
	Expression string
	DataType   string
}

// Hierarchy is a named drill path over columns.
type Hierarchy struct {
	Name   string
	Levels []string
}

// Relationship links FromTable.FromColumn (many side) to ToTable.ToColumn.
type Relationship struct {
	Name       string
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
	Active     bool
	// Raw keeps every field of the source record.
	Raw map[string]any
}

// Kind distinguishes measures from calculated columns.
type Kind string

// Expression kinds.
const (
	KindMeasure          Kind = "measure"
	KindCalculatedColumn Kind = "calculated_column"
)

// Expression is one translatable slot of the model.
type Expression struct {
	Table      string
	Name       string
	Kind       Kind
	Expression string
}

// Key identifies the expression within the model.
func (e Expression) Key() string {
	return e.Table + "." + e.Name
}

// Table returns the table with the given name, case-insensitively.
func (m *Model) Table(name string) (*Table, bool) {
	for i := range m.Tables {
		if strings.EqualFold(m.Tables[i].Name, name) {
			return &m.Tables[i], true
		}
	}
	return nil, false
}

// Expressions returns every calculated column and measure in model order:
// per table, calculated columns first, then measures.
func (m *Model) Expressions() []Expression {
	var out []Expression
	for _, t := range m.Tables {
		for _, c := range t.CalculatedColumns {
			out = append(out, Expression{Table: t.Name, Name: c.Name, Kind: KindCalculatedColumn, Expression: c.Expression})
		}
		for _, ms := range t.Measures {
			out = append(out, Expression{Table: t.Name, Name: ms.Name, Kind: KindMeasure, Expression: ms.Expression})
		}
	}
	return out
}

// Stats summarizes the model's size.
type Stats struct {
	Tables            int
	Columns           int
	Measures          int
	CalculatedColumns int
	Relationships     int
}

// Stats counts the model's records.
func (m *Model) Stats() Stats {
	s := Stats{Tables: len(m.Tables), Relationships: len(m.Relationships)}
	for _, t := range m.Tables {
		s.Columns += len(t.Columns)
		s.Measures += len(t.Measures)
		s.CalculatedColumns += len(t.CalculatedColumns)
	}
	return s
}
