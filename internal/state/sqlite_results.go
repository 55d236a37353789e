package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// RecordResults stores the outcome of every expression of a run in one
// transaction; either all records are written or none.
func (s *SQLiteStore) RecordResults(ctx context.Context, runID string, records []Record) (err error) {
	if s.db == nil {
		return errNotOpened
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(run_id, seq, table_name, name, kind, expression, sql, status, reasons, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		reasons, err := encodeList(r.Reasons)
		if err != nil {
			return err
		}
		warnings, err := encodeList(r.Warnings)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, i, r.Table, r.Name, r.Kind, r.Expression, r.SQL, r.Status, reasons, warnings); err != nil {
			return fmt.Errorf("failed to record result %s.%s: %w", r.Table, r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	s.logger.Debug("results recorded", slog.String("run", runID), slog.Int("count", len(records)))
	return nil
}

// GetResults returns the records of a run in the order they were stored.
func (s *SQLiteStore) GetResults(ctx context.Context, runID string) ([]Record, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx, `SELECT table_name, name, kind, expression, sql, status, reasons, warnings
		FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			reasons, warnings string
		)
		if err := rows.Scan(&r.Table, &r.Name, &r.Kind, &r.Expression, &r.SQL, &r.Status, &reasons, &warnings); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
			return nil, fmt.Errorf("invalid reasons for %s.%s: %w", r.Table, r.Name, err)
		}
		if err := json.Unmarshal([]byte(warnings), &r.Warnings); err != nil {
			return nil, fmt.Errorf("invalid warnings for %s.%s: %w", r.Table, r.Name, err)
		}
		if len(r.Reasons) == 0 {
			r.Reasons = nil
		}
		if len(r.Warnings) == 0 {
			r.Warnings = nil
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	return out, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(b), nil
}
