// Package state records conversion history in SQLite: one run per convert
// invocation and one result row per translated expression.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Counts tallies expression outcomes of a run.
type Counts struct {
	Translated  int `json:"translated"`
	Unsupported int `json:"unsupported"`
	Failed      int `json:"failed"`
}

// Run is one conversion of a model file.
type Run struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Counts
	Error string `json:"error,omitempty"`
}

// Record is the stored outcome of one expression.
type Record struct {
	Table      string   `json:"table"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Expression string   `json:"expression"`
	SQL        string   `json:"sql,omitempty"`
	Status     string   `json:"status"`
	Reasons    []string `json:"reasons,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Store defines the history operations.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun(ctx context.Context, source string) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, counts Counts, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	RecordResults(ctx context.Context, runID string, records []Record) error
	GetResults(ctx context.Context, runID string) ([]Record, error)
}

var _ Store = (*SQLiteStore)(nil)
