// Package artifact assembles translated model expressions into deployable
// Databricks artifacts: one CREATE OR REPLACE VIEW script per table, or a
// notebook with one %sql cell per table.
//
// Every calculated column and measure produces output. Expressions that
// could not be translated become placeholder comments carrying the reason,
// and approximated translations get a review line, so a reviewer can find
// every spot that needs attention by searching the output.
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/daxport/internal/dag"
	"github.com/leapstack-labs/daxport/internal/model"
	"github.com/leapstack-labs/daxport/pkg/translate"
)

// Format selects the artifact written by Write.
type Format string

// Output formats.
const (
	FormatSQL      Format = "sql"
	FormatNotebook Format = "notebook"
)

// Defaults applied to empty Config fields.
const (
	DefaultCatalog      = "main"
	DefaultSchema       = "semantic"
	DefaultSourceSchema = "raw"
)

// Checker validates one translated expression against its table.
type Checker interface {
	Check(ctx context.Context, table, sql string) error
}

// Config holds assembler configuration.
type Config struct {
	// Catalog and Schema name the target of the generated views
	Catalog string
	Schema  string
	// SourceSchema holds the raw tables the views select from
	SourceSchema string
	// Materialize emits CREATE VIEW statements; otherwise commented stubs
	Materialize bool
	// Output is the format written by Write (sql if empty)
	Output Format
	// Workers bounds translation concurrency (GOMAXPROCS if zero)
	Workers int
	// Translator converts expressions (a default translator if nil)
	Translator *translate.Translator
	// Checker dry-runs translated SQL when set; failures become review notes
	Checker Checker
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Slot is one calculated column or measure and its translation.
type Slot struct {
	Expression model.Expression
	Result     translate.Result
	// Review lists notes for a human: approximation warnings, join hints
	// and dry-run failures.
	Review []string
}

// Translated reports whether the slot has usable SQL.
func (s Slot) Translated() bool {
	return s.Result.Status() == translate.StatusTranslated
}

// View is the assembled output for one table.
type View struct {
	Table   string
	Columns []string
	Slots   []Slot
}

// Summary counts slot outcomes.
type Summary struct {
	Tables      int `json:"tables"`
	Translated  int `json:"translated"`
	Unsupported int `json:"unsupported"`
	Failed      int `json:"failed"`
	Flagged     int `json:"flagged"`
}

// Total returns the number of slots.
func (s Summary) Total() int {
	return s.Translated + s.Unsupported + s.Failed
}

// Artifacts is the assembled result for a model.
type Artifacts struct {
	Model string
	Views []View
	cfg   Config
}

// Assembler builds artifacts from models.
type Assembler struct {
	cfg    Config
	tr     *translate.Translator
	logger *slog.Logger
}

// New creates an assembler, filling in defaults for empty fields.
func New(cfg Config) *Assembler {
	if cfg.Catalog == "" {
		cfg.Catalog = DefaultCatalog
	}
	if cfg.Schema == "" {
		cfg.Schema = DefaultSchema
	}
	if cfg.SourceSchema == "" {
		cfg.SourceSchema = DefaultSourceSchema
	}
	if cfg.Output == "" {
		cfg.Output = FormatSQL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tr := cfg.Translator
	if tr == nil {
		tr = translate.New(translate.Config{Logger: logger})
	}
	return &Assembler{cfg: cfg, tr: tr, logger: logger}
}

// Build translates every expression of m and groups the results per table.
// Tables are ordered dimensions first; a relationship cycle is logged and
// model order is kept. Build only fails when ctx is cancelled.
func (a *Assembler) Build(ctx context.Context, m *model.Model) (*Artifacts, error) {
	exprs := m.Expressions()
	jobs := make([]translate.Job, len(exprs))
	for i, e := range exprs {
		jobs[i] = translate.Job{ID: e.Key(), Expression: e.Expression}
	}

	results, err := a.tr.Batch(ctx, jobs, a.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to translate model %s: %w", m.Name, err)
	}

	graph := dag.FromModel(m)
	order, err := graph.Order()
	if err != nil {
		a.logger.Warn("relationship cycle, keeping model order", "error", err)
	}

	slots := make(map[string][]Slot, len(m.Tables))
	for i, e := range exprs {
		slot := Slot{Expression: e, Result: results[i]}
		slot.Review = append(slot.Review, results[i].Warnings...)
		for _, rel := range results[i].Related {
			if hint, ok := graph.JoinHint(e.Table, rel); ok {
				slot.Review = append(slot.Review, hint)
			} else {
				slot.Review = append(slot.Review, fmt.Sprintf("no relationship between %s and %s", e.Table, rel))
			}
		}
		if a.cfg.Checker != nil && slot.Translated() {
			if err := a.cfg.Checker.Check(ctx, e.Table, slot.Result.SQL); err != nil {
				slot.Review = append(slot.Review, "dry run: "+err.Error())
			}
		}
		slots[e.Table] = append(slots[e.Table], slot)
	}

	art := &Artifacts{Model: m.Name, cfg: a.cfg}
	for _, name := range order {
		node, _ := graph.GetNode(name)
		t := node.Table
		view := View{Table: t.Name, Slots: slots[t.Name]}
		for _, c := range t.Columns {
			view.Columns = append(view.Columns, c.Name)
		}
		art.Views = append(art.Views, view)
	}

	sum := art.Summary()
	a.logger.Info("model assembled",
		"model", m.Name,
		"tables", sum.Tables,
		"translated", sum.Translated,
		"unsupported", sum.Unsupported,
		"failed", sum.Failed)
	return art, nil
}

// Summary counts outcomes across all views.
func (art *Artifacts) Summary() Summary {
	s := Summary{Tables: len(art.Views)}
	for _, v := range art.Views {
		for _, slot := range v.Slots {
			switch slot.Result.Status() {
			case translate.StatusTranslated:
				s.Translated++
			case translate.StatusUnsupported:
				s.Unsupported++
			case translate.StatusFailed:
				s.Failed++
			}
			if len(slot.Review) > 0 {
				s.Flagged++
			}
		}
	}
	return s
}

// Slots returns every slot in view order.
func (art *Artifacts) Slots() []Slot {
	var out []Slot
	for _, v := range art.Views {
		out = append(out, v.Slots...)
	}
	return out
}

// Config returns the configuration the artifacts were built with.
func (art *Artifacts) Config() Config {
	return art.cfg
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
