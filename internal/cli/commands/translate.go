package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/translate"
	"github.com/spf13/cobra"
)

// TranslateJSONOutput is the structured output of the translate command.
type TranslateJSONOutput struct {
	Expression  string   `json:"expression" yaml:"expression"`
	SQL         string   `json:"sql" yaml:"sql"`
	Status      string   `json:"status" yaml:"status"`
	Unsupported []string `json:"unsupported,omitempty" yaml:"unsupported,omitempty"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Related     []string `json:"related,omitempty" yaml:"related,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// errNotTranslated marks a result already reported through the renderer.
var errNotTranslated = errors.New("expression was not translated")

// NewTranslateCommand creates the translate command.
func NewTranslateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "translate <expression|->",
		Short: "Translate a single DAX expression to SQL",
		Long: `Translate one DAX expression to a Databricks SQL expression.

Pass "-" to read the expression from stdin. The command fails when the
expression uses an unsupported function or cannot be parsed.`,
		Example: `  # Translate an expression
  daxport translate "DIVIDE(SUM(Sales[Amount]), COUNTROWS(Sales))"

  # Read from stdin
  echo 'IF(Sales[Qty] > 10, "bulk", "retail")' | daxport translate -

  # Output as JSON
  daxport translate --output json "DISTINCTCOUNT(Customers[ID])"`,
		Args: cobra.ExactArgs(1),
		RunE: runTranslate,
	}
}

func runTranslate(cmd *cobra.Command, args []string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	expr, err := readExpression(cmd, args[0])
	if err != nil {
		return err
	}
	if expr == "" {
		return fmt.Errorf("expression is empty")
	}

	tr, err := cmdCtx.Translator()
	if err != nil {
		return err
	}
	res := tr.Translate(expr)

	out := TranslateJSONOutput{
		Expression:  expr,
		SQL:         res.SQL,
		Status:      string(res.Status()),
		Unsupported: res.Verdict.Functions(),
		Warnings:    res.Warnings,
		Related:     res.Related,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}

	if ok, err := r.Structured(out); ok || err != nil {
		if err != nil {
			return err
		}
		if res.Status() != translate.StatusTranslated {
			return errNotTranslated
		}
		return nil
	}

	if res.Status() != translate.StatusTranslated {
		return fmt.Errorf("%s: %s", res.Status(), res.Reason())
	}

	// Plain SQL in every text mode so the output can be piped.
	r.Println(res.SQL)
	for _, w := range res.Warnings {
		r.Warn(w)
	}
	if len(res.Related) > 0 {
		r.Warn("joins required: " + strings.Join(res.Related, ", "))
	}
	return nil
}
