// Package verify dry-runs generated SQL against an empty in-memory DuckDB
// copy of the model's tables. A query that binds there has valid names and
// shapes; DuckDB and Databricks function sets differ, so failures are
// review hints rather than errors.
package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/daxport/internal/model"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Sandbox holds an in-memory DuckDB database with empty model tables.
type Sandbox struct {
	db     *sql.DB
	tables []string
	logger *slog.Logger
}

// New opens an in-memory DuckDB sandbox.
func New(ctx context.Context, logger *slog.Logger) (*Sandbox, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return &Sandbox{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Sandbox) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateTables creates one empty table per model table. Calculated columns
// are created alongside the source columns so expressions referencing them
// bind; unknown data types map to VARCHAR.
func (s *Sandbox) CreateTables(ctx context.Context, m *model.Model) error {
	for _, t := range m.Tables {
		cols := make([]string, 0, len(t.Columns)+len(t.CalculatedColumns))
		for _, c := range t.Columns {
			cols = append(cols, quote(c.Name)+" "+duckType(c.DataType))
		}
		for _, c := range t.CalculatedColumns {
			cols = append(cols, quote(c.Name)+" "+duckType(c.DataType))
		}
		if len(cols) == 0 {
			// DuckDB rejects tables without columns.
			cols = append(cols, `"__rowid" BIGINT`)
		}

		stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quote(t.Name), strings.Join(cols, ", ")) //nolint:gosec // names are quoted
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
		s.tables = append(s.tables, t.Name)
		s.logger.Debug("sandbox table created", slog.String("table", t.Name), slog.Int("columns", len(cols)))
	}
	return nil
}

// Check binds expr as a select item over table, with the other model
// tables cross-joined so qualified references to them resolve. No rows
// are read.
func (s *Sandbox) Check(ctx context.Context, table, expr string) error {
	from := []string{quote(table)}
	for _, t := range s.tables {
		if !strings.EqualFold(t, table) {
			from = append(from, quote(t))
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", Rewrite(expr), strings.Join(from, " CROSS JOIN ")) //nolint:gosec // dry run on an empty sandbox
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return errors.New(firstLine(err.Error()))
	}
	return rows.Close()
}

// Rewrite converts backquoted identifiers to DuckDB's double-quoted form.
// String literals and comments are copied unchanged.
func Rewrite(expr string) string {
	var b strings.Builder
	b.Grow(len(expr))

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == '\'':
			j, _ := skipQuoted(expr, i, '\'')
			b.WriteString(expr[i:j])
			i = j - 1
		case c == '/' && i+1 < len(expr) && expr[i+1] == '*':
			j := strings.Index(expr[i+2:], "*/")
			if j < 0 {
				b.WriteString(expr[i:])
				return b.String()
			}
			b.WriteString(expr[i : i+j+4])
			i += j + 3
		case c == '`':
			j, closed := skipQuoted(expr, i, '`')
			inner := expr[i+1 : j]
			if closed {
				inner = expr[i+1 : j-1]
			}
			b.WriteString(quote(strings.ReplaceAll(inner, "``", "`")))
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// skipQuoted returns the index just past the quoted run starting at
// start, treating a doubled quote as an escape. An unterminated run ends
// at len(s).
func skipQuoted(s string, start int, q byte) (int, bool) {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1, true
	}
	return len(s), false
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func duckType(dataType string) string {
	switch strings.ToLower(dataType) {
	case "int64", "integer", "whole number":
		return "BIGINT"
	case "double", "decimal", "currency", "fixed decimal number":
		return "DOUBLE"
	case "datetime", "date", "time":
		return "TIMESTAMP"
	case "boolean":
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
