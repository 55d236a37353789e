package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/daxport/internal/artifact"
	"github.com/leapstack-labs/daxport/internal/model"
	"github.com/leapstack-labs/daxport/internal/state"
	"github.com/leapstack-labs/daxport/internal/verify"
	"github.com/leapstack-labs/daxport/pkg/translate"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces the burst of events editors emit per save.
const watchDebounce = 100 * time.Millisecond

// ConvertOptions holds options for the convert command.
type ConvertOptions struct {
	Notebook bool // Write a Databricks notebook instead of a SQL script
	Watch    bool // Re-run whenever the model file changes
	Verify   bool // Dry-run translated SQL against an in-memory DuckDB
	Record   bool // Store the run in the history database
}

// NewConvertCommand creates the convert command.
func NewConvertCommand() *cobra.Command {
	opts := &ConvertOptions{}
	cmd := &cobra.Command{
		Use:   "convert <model>",
		Short: "Convert a Power BI model into Databricks view scripts",
		Long: `Translate every calculated column and measure of a Power BI model and
assemble one CREATE OR REPLACE VIEW per table, dimensions first.

Expressions that cannot be translated become placeholder comments with
the reason, so every spot needing manual work can be found by searching
the output. A summary is printed to stderr.`,
		Example: `  # Print commented view stubs
  daxport convert model.bim

  # Write executable views into a catalog and schema
  daxport convert --materialize --catalog lake --schema gold -o views.sql model.bim

  # Write a notebook and keep it up to date while editing
  daxport convert --notebook -o semantic.ipynb --watch model.bim

  # Dry-run the SQL and record the run in history
  daxport convert --verify --record model.bim`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], opts)
		},
	}

	// These are read back through the config layer.
	cmd.Flags().Bool("materialize", false, "Emit CREATE VIEW statements instead of commented stubs")
	cmd.Flags().String("catalog", "", "Target catalog (default main)")
	cmd.Flags().String("schema", "", "Target schema (default semantic)")
	cmd.Flags().String("source-schema", "", "Schema holding the source tables (default raw)")
	cmd.Flags().StringP("out", "o", "", "Write output to a file instead of stdout")

	cmd.Flags().BoolVar(&opts.Notebook, "notebook", false, "Write a Databricks notebook (.ipynb)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Re-run when the model file changes")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "Dry-run translated SQL against DuckDB")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "Record the run in the history database")

	return cmd
}

func runConvert(cmd *cobra.Command, path string, opts *ConvertOptions) error {
	cmdCtx := NewCommandContext(cmd)

	tr, err := cmdCtx.Translator()
	if err != nil {
		return err
	}

	if err := convertOnce(cmd.Context(), cmdCtx, tr, path, opts); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}
	return watchModel(cmd.Context(), cmdCtx, path, func(ctx context.Context) {
		if err := convertOnce(ctx, cmdCtx, tr, path, opts); err != nil {
			cmdCtx.Renderer.Warn(err.Error())
		}
	})
}

// outputFormat picks the artifact format from the flag or the file
// extension of --out.
func outputFormat(notebook bool, out string) artifact.Format {
	if notebook || strings.EqualFold(filepath.Ext(out), ".ipynb") {
		return artifact.FormatNotebook
	}
	return artifact.FormatSQL
}

func convertOnce(ctx context.Context, cmdCtx *CommandContext, tr *translate.Translator, path string, opts *ConvertOptions) (err error) {
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	m, err := model.Load(path)
	if err != nil {
		return err
	}

	var (
		store *state.SQLiteStore
		run   *state.Run
	)
	if opts.Record {
		store, err = cmdCtx.OpenStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if run, err = store.CreateRun(ctx, path); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = store.CompleteRun(context.WithoutCancel(ctx), run.ID, state.RunStatusFailed, state.Counts{}, err.Error())
			}
		}()
	}

	art, err := buildArtifacts(ctx, cmdCtx, tr, m, opts)
	if err != nil {
		return err
	}

	if err := writeArtifacts(cmdCtx, art); err != nil {
		return err
	}

	sum := art.Summary()
	if run != nil {
		if err := store.RecordResults(ctx, run.ID, records(art)); err != nil {
			return err
		}
		counts := state.Counts{Translated: sum.Translated, Unsupported: sum.Unsupported, Failed: sum.Failed}
		if err := store.CompleteRun(ctx, run.ID, state.RunStatusCompleted, counts, ""); err != nil {
			return err
		}
	}

	styles := r.Styles()
	_, _ = fmt.Fprintln(r.ErrWriter(), styles.Muted.Render(summaryLine(sum)))
	if cfg.Out != "" {
		_, _ = fmt.Fprintln(r.ErrWriter(), styles.Success.Render("wrote "+cfg.Out))
	}
	if run != nil {
		_, _ = fmt.Fprintln(r.ErrWriter(), styles.Muted.Render("recorded run "+run.ID))
	}
	return nil
}

func buildArtifacts(ctx context.Context, cmdCtx *CommandContext, tr *translate.Translator, m *model.Model, opts *ConvertOptions) (*artifact.Artifacts, error) {
	acfg := cmdCtx.Cfg.ArtifactConfig()
	acfg.Output = outputFormat(opts.Notebook, cmdCtx.Cfg.Out)
	acfg.Translator = tr
	acfg.Logger = cmdCtx.Logger

	if opts.Verify {
		sandbox, err := verify.New(ctx, cmdCtx.Logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = sandbox.Close() }()
		if err := sandbox.CreateTables(ctx, m); err != nil {
			return nil, err
		}
		acfg.Checker = sandbox
	}

	return artifact.New(acfg).Build(ctx, m)
}

func writeArtifacts(cmdCtx *CommandContext, art *artifact.Artifacts) error {
	out := cmdCtx.Cfg.Out
	if out == "" {
		return art.Write(cmdCtx.Renderer.Writer())
	}

	if err := os.MkdirAll(filepath.Dir(out), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(out) //nolint:gosec // path comes from the command line
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := art.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return f.Close()
}

// records flattens the artifacts into history rows.
func records(art *artifact.Artifacts) []state.Record {
	slots := art.Slots()
	out := make([]state.Record, 0, len(slots))
	for _, s := range slots {
		rec := state.Record{
			Table:      s.Expression.Table,
			Name:       s.Expression.Name,
			Kind:       string(s.Expression.Kind),
			Expression: s.Expression.Expression,
			SQL:        s.Result.SQL,
			Status:     string(s.Result.Status()),
			Warnings:   s.Review,
		}
		switch s.Result.Status() {
		case translate.StatusUnsupported:
			rec.Reasons = s.Result.Verdict.Functions()
		case translate.StatusFailed:
			rec.Reasons = []string{s.Result.Err.Error()}
		}
		out = append(out, rec)
	}
	return out
}

// watchModel calls rerun after each burst of writes to path until ctx is
// done. The directory is watched rather than the file so that editors
// which save by renaming are still seen.
func watchModel(ctx context.Context, cmdCtx *CommandContext, path string, rerun func(context.Context)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	_, _ = fmt.Fprintln(cmdCtx.Renderer.ErrWriter(), cmdCtx.Renderer.Styles().Info.Render("watching "+path+" (Ctrl+C to stop)"))

	var debounceTimer *time.Timer
	changed := make(chan struct{}, 1)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})

		case <-changed:
			cmdCtx.Logger.Debug("model changed, converting", "file", path)
			rerun(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				rerun(ctx)
				continue
			}
			cmdCtx.Logger.Error("watcher error", "error", err)
		}
	}
}
