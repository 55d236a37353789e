package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/daxport/internal/state"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// RunJSONOutput is the structured output of one run and its results.
type RunJSONOutput struct {
	Run     *state.Run     `json:"run" yaml:"run"`
	Results []state.Record `json:"results" yaml:"results"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded conversion runs",
		Long: `List conversion runs recorded with 'daxport convert --record', newest
first, or show every expression outcome of one run.`,
		Example: `  # Recent runs
  daxport history

  # One run in detail
  daxport history 3f1c2a9e-...

  # As JSON
  daxport history --output json --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return showRun(cmd, args[0])
			}
			return listRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}

func listRuns(cmd *cobra.Command, opts *HistoryOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []*state.Run{}
	}

	if ok, err := r.Structured(runs); ok || err != nil {
		return err
	}

	if len(runs) == 0 {
		r.Println(r.Styles().Muted.Render("No runs recorded. Use 'daxport convert --record' to record one."))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Source,
			string(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(run.Translated),
			strconv.Itoa(run.Unsupported),
			strconv.Itoa(run.Failed),
		})
	}
	r.Table([]string{"ID", "Source", "Status", "Started", "Translated", "Unsupported", "Failed"}, rows)
	return nil
}

func showRun(cmd *cobra.Command, id string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}
	results, err := store.GetResults(cmd.Context(), id)
	if err != nil {
		return err
	}
	if results == nil {
		results = []state.Record{}
	}

	if ok, err := r.Structured(RunJSONOutput{Run: run, Results: results}); ok || err != nil {
		return err
	}

	styles := r.Styles()
	r.Println(styles.Header1.Render("Run " + run.ID))
	r.Printf("%s: %s\n", styles.Bold.Render("Source"), run.Source)
	r.Printf("%s: %s\n", styles.Bold.Render("Status"), run.Status)
	r.Printf("%s: %s\n", styles.Bold.Render("Started"), run.StartedAt.Local().Format(time.DateTime))
	if run.Error != "" {
		r.Printf("%s: %s\n", styles.Bold.Render("Error"), styles.Error.Render(run.Error))
	}
	r.Println("")

	rows := make([][]string, 0, len(results))
	for _, rec := range results {
		detail := strings.Join(rec.Reasons, ", ")
		if detail == "" {
			detail = strings.Join(rec.Warnings, "; ")
		}
		rows = append(rows, []string{rec.Table, rec.Name, rec.Kind, statusLabel(cmdCtx, rec.Status), detail})
	}
	r.Table([]string{"Table", "Name", "Kind", "Status", "Detail"}, rows)
	return nil
}
