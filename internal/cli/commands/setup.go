package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/daxport/internal/cli/config"
	"github.com/leapstack-labs/daxport/internal/cli/output"
	"github.com/leapstack-labs/daxport/internal/ruleset"
	"github.com/leapstack-labs/daxport/internal/state"
	"github.com/leapstack-labs/daxport/pkg/translate"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the config and logger
// stored on the command's context by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Translator builds a translator from the built-in rules plus the user
// rules configured under the rules key.
func (c *CommandContext) Translator() (*translate.Translator, error) {
	reg, err := ruleset.Load(c.Cfg.Rules, nil, c.Logger)
	if err != nil {
		return nil, err
	}
	return translate.New(translate.Config{
		Registry: reg,
		MaxDepth: c.Cfg.MaxDepth,
		Logger:   c.Logger,
	}), nil
}

// OpenStore opens and migrates the history database at the configured
// state path. The caller closes it.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(c.Cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return store, nil
}

// readExpression returns arg, or all of stdin when arg is "-".
func readExpression(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
