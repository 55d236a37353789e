package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/daxport/internal/artifact"
	"github.com/leapstack-labs/daxport/internal/model"
	"github.com/leapstack-labs/daxport/pkg/translate"
	"github.com/spf13/cobra"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Strict bool // Fail when any expression needs manual work
}

// SlotOutput is the structured form of one checked expression.
type SlotOutput struct {
	Table  string   `json:"table" yaml:"table"`
	Name   string   `json:"name" yaml:"name"`
	Kind   string   `json:"kind" yaml:"kind"`
	Status string   `json:"status" yaml:"status"`
	SQL    string   `json:"sql,omitempty" yaml:"sql,omitempty"`
	Reason string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Review []string `json:"review,omitempty" yaml:"review,omitempty"`
}

// CheckJSONOutput is the structured output of the check command.
type CheckJSONOutput struct {
	Model       string           `json:"model" yaml:"model"`
	Summary     artifact.Summary `json:"summary" yaml:"summary"`
	Expressions []SlotOutput     `json:"expressions" yaml:"expressions"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}
	cmd := &cobra.Command{
		Use:   "check <model>",
		Short: "Report which model expressions can be translated",
		Long: `Translate every calculated column and measure of a Power BI model and
report the verdict for each one without writing any artifacts.

The model is a DataModelSchema document (.json, .bim) or its YAML form.`,
		Example: `  # Check a model
  daxport check model.bim

  # Fail if anything needs manual work (for CI)
  daxport check --strict model.bim

  # Machine-readable report
  daxport check --output json model.bim`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Exit with an error when any expression is not translated")

	return cmd
}

func runCheck(cmd *cobra.Command, path string, opts *CheckOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	m, err := model.Load(path)
	if err != nil {
		return err
	}
	tr, err := cmdCtx.Translator()
	if err != nil {
		return err
	}

	cfg := cmdCtx.Cfg.ArtifactConfig()
	cfg.Translator = tr
	cfg.Logger = cmdCtx.Logger
	art, err := artifact.New(cfg).Build(cmd.Context(), m)
	if err != nil {
		return err
	}

	slots := art.Slots()
	sum := art.Summary()
	out := CheckJSONOutput{Model: art.Model, Summary: sum, Expressions: make([]SlotOutput, 0, len(slots))}
	for _, s := range slots {
		out.Expressions = append(out.Expressions, slotOutput(s))
	}

	ok, err := r.Structured(out)
	if err != nil {
		return err
	}
	if !ok {
		renderCheck(cmdCtx, out)
	}

	if opts.Strict && sum.Translated != sum.Total() {
		return fmt.Errorf("%d of %d expressions need manual implementation", sum.Total()-sum.Translated, sum.Total())
	}
	return nil
}

func slotOutput(s artifact.Slot) SlotOutput {
	return SlotOutput{
		Table:  s.Expression.Table,
		Name:   s.Expression.Name,
		Kind:   string(s.Expression.Kind),
		Status: string(s.Result.Status()),
		SQL:    s.Result.SQL,
		Reason: s.Result.Reason(),
		Review: s.Review,
	}
}

func renderCheck(cmdCtx *CommandContext, out CheckJSONOutput) {
	r := cmdCtx.Renderer
	styles := r.Styles()

	rows := make([][]string, 0, len(out.Expressions))
	for _, e := range out.Expressions {
		detail := e.Reason
		if detail == "" {
			detail = strings.Join(e.Review, "; ")
		}
		rows = append(rows, []string{e.Table, e.Name, e.Kind, statusLabel(cmdCtx, e.Status), detail})
	}

	r.Println(styles.Header1.Render(out.Model))
	r.Table([]string{"Table", "Name", "Kind", "Status", "Detail"}, rows)
	r.Println(summaryLine(out.Summary))
}

func statusLabel(cmdCtx *CommandContext, status string) string {
	styles := cmdCtx.Renderer.Styles()
	switch translate.Status(status) {
	case translate.StatusTranslated:
		return styles.Success.Render(status)
	case translate.StatusUnsupported:
		return styles.Warning.Render(status)
	default:
		return styles.Error.Render(status)
	}
}

func summaryLine(s artifact.Summary) string {
	return fmt.Sprintf("%d tables, %d expressions: %d translated, %d unsupported, %d failed, %d flagged for review",
		s.Tables, s.Total(), s.Translated, s.Unsupported, s.Failed, s.Flagged)
}
