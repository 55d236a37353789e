// Package translate runs the full DAX to SQL pipeline: lex, parse,
// classify, then generate.
//
// # Usage
//
//	tr := translate.New(translate.Config{})
//	res := tr.Translate("DISTINCTCOUNT(Customers[ID])")
//	switch res.Status() {
//	case translate.StatusTranslated:
//	    fmt.Println(res.SQL) // COUNT(DISTINCT Customers.ID)
//	case translate.StatusUnsupported:
//	    fmt.Println(res.Verdict.Functions())
//	case translate.StatusFailed:
//	    fmt.Println(res.Err)
//	}
//
// A Translator holds only read-only state and may be shared by any number
// of goroutines; Batch fans a set of expressions out over a worker pool.
package translate

import (
	"log/slog"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/classify"
	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/leapstack-labs/daxport/pkg/sqlgen"
)

// ManualMarker is the text placed wherever an expression could not be
// translated.
const ManualMarker = "manual implementation required"

// Status is the overall outcome of one translation.
type Status string

// Translation outcomes.
const (
	StatusTranslated  Status = "translated"
	StatusUnsupported Status = "unsupported"
	StatusFailed      Status = "failed"
)

// Result is the outcome of translating one expression.
type Result struct {
	Source   string
	SQL      string
	Verdict  classify.Verdict
	Warnings []string
	// Related lists tables reached through RELATED.
	Related []string
	// Err is a *dax.LexError, *dax.ParseError, *dax.StackLimitError or
	// *sqlgen.Error when the expression could not be processed.
	Err error
}

// Status reports whether the expression was translated, rejected by the
// classifier, or failed to lex, parse or generate.
func (r Result) Status() Status {
	switch {
	case r.Err != nil:
		return StatusFailed
	case !r.Verdict.Translatable():
		return StatusUnsupported
	default:
		return StatusTranslated
	}
}

// Reason explains why manual work is needed; it is empty for translated
// expressions.
func (r Result) Reason() string {
	switch r.Status() {
	case StatusFailed:
		return r.Err.Error()
	case StatusUnsupported:
		return "unsupported functions: " + strings.Join(r.Verdict.Functions(), ", ")
	default:
		return ""
	}
}

// Config holds translator configuration.
type Config struct {
	// Registry supplies rewrite rules and the denylist (rules.Default() if nil)
	Registry *rules.Registry
	// MaxDepth caps expression nesting (dax.DefaultMaxDepth if zero)
	MaxDepth int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Translator converts DAX expressions to Databricks SQL.
type Translator struct {
	registry  *rules.Registry
	generator *sqlgen.Generator
	maxDepth  int
	logger    *slog.Logger
}

// New creates a translator.
func New(cfg Config) *Translator {
	reg := cfg.Registry
	if reg == nil {
		reg = rules.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Translator{
		registry:  reg,
		generator: sqlgen.New(reg),
		maxDepth:  cfg.MaxDepth,
		logger:    logger,
	}
}

// Registry returns the rule registry in use.
func (t *Translator) Registry() *rules.Registry {
	return t.registry
}

// Parse parses expr with the translator's arity rules and depth limit.
func (t *Translator) Parse(expr string) (dax.Expr, error) {
	return dax.Parse(expr, dax.WithArityChecker(t.registry), dax.WithMaxDepth(t.maxDepth))
}

// Translate converts one expression. Problems are reported in the result,
// never as a panic or a shared error.
func (t *Translator) Translate(expr string) Result {
	res := Result{Source: expr}

	tree, err := t.Parse(expr)
	if err != nil {
		res.Err = err
		t.logger.Debug("expression failed to parse", "error", err)
		return res
	}

	res.Verdict = classify.Classify(tree, t.registry)
	if !res.Verdict.Translatable() {
		t.logger.Debug("expression not translatable", "functions", res.Verdict.Functions())
		return res
	}

	out, err := t.generator.Generate(tree, expr)
	if err != nil {
		res.Err = err
		t.logger.Debug("expression failed to generate", "error", err)
		return res
	}

	res.SQL = out.SQL
	res.Warnings = out.Warnings
	res.Related = out.Related
	t.logger.Debug("expression translated", "warnings", len(out.Warnings))
	return res
}
