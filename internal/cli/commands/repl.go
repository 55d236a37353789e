package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/leapstack-labs/daxport/pkg/translate"
	"github.com/spf13/cobra"
)

const (
	replPrompt         = "dax> "
	replContinuePrompt = " ...> "
)

// lineReader is the part of readline the REPL loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Translate DAX expressions interactively",
		Long: `Start an interactive session that translates each DAX expression as it
is entered. End a line with a backslash to continue the expression on
the next line. Tab completes function names.`,
		Example: `  daxport repl`,
		Args:    cobra.NoArgs,
		RunE:    runREPL,
	}
}

func runREPL(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContext(cmd)

	tr, err := cmdCtx.Translator()
	if err != nil {
		return err
	}

	// History lives next to the state database
	historyFile := filepath.Join(filepath.Dir(cmdCtx.Cfg.StatePath), "repl_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newFunctionCompleter(tr.Registry()),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           readline.NewCancelableStdin(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daxport REPL")
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	return replLoop(rl, tr, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// replLoop reads expressions from rl until EOF or .quit and prints their
// translations to out.
func replLoop(rl lineReader, tr *translate.Translator, out, errOut io.Writer) error {
	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if buf.Len() == 0 {
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, ".") {
				if quit := handleDotCommand(line, tr.Registry(), out, errOut); quit {
					return nil
				}
				continue
			}
		}

		// Accumulate continued lines
		if strings.HasSuffix(line, `\`) {
			buf.WriteString(strings.TrimSuffix(line, `\`))
			buf.WriteString("\n")
			rl.SetPrompt(replContinuePrompt)
			continue
		}
		buf.WriteString(line)
		rl.SetPrompt(replPrompt)

		expr := strings.TrimSpace(buf.String())
		buf.Reset()
		if expr != "" {
			printTranslation(tr.Translate(expr), out, errOut)
		}
	}
}

func printTranslation(res translate.Result, out, errOut io.Writer) {
	if res.Status() != translate.StatusTranslated {
		_, _ = fmt.Fprintf(errOut, "%s: %s\n", res.Status(), res.Reason())
		return
	}
	_, _ = fmt.Fprintln(out, res.SQL)
	for _, w := range res.Warnings {
		_, _ = fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	if len(res.Related) > 0 {
		_, _ = fmt.Fprintf(errOut, "joins required: %s\n", strings.Join(res.Related, ", "))
	}
}

// handleDotCommand runs a REPL command and reports whether to exit.
func handleDotCommand(line string, reg *rules.Registry, out, errOut io.Writer) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(out)

	case ".rules":
		names := make([]string, 0, reg.Len())
		for _, rule := range reg.Rules() {
			names = append(names, rule.Name)
		}
		_, _ = fmt.Fprintln(out, strings.Join(names, " "))

	case ".denied":
		for _, d := range reg.Denylist() {
			_, _ = fmt.Fprintf(out, "%-24s %s\n", d.Name, d.Category)
		}

	case ".rule":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .rule <function>")
			return false
		}
		if category, ok := reg.Denied(parts[1]); ok {
			_, _ = fmt.Fprintf(out, "%s: denied (%s)\n", strings.ToUpper(parts[1]), category)
			return false
		}
		rule, ok := reg.Lookup(parts[1])
		if !ok {
			_, _ = fmt.Fprintf(errOut, "No rule for %s\n", parts[1])
			return false
		}
		_, _ = fmt.Fprintf(out, "%s (%s): %s\n", rule.Name, rule.Arity(), rule.Kind)
		if rule.Note != "" {
			_, _ = fmt.Fprintf(out, "  %s\n", rule.Note)
		}

	case ".clear":
		_, _ = fmt.Fprint(out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help             Show this help message
  .rules            List translatable functions
  .rule <function>  Show the rule for one function
  .denied           List functions that are never translated
  .clear            Clear the screen
  .quit / .exit     Exit the REPL

Tips:
  - End a line with \ to continue the expression on the next line
  - Use arrow keys to navigate history
  - Tab completion works for function names
`
	_, _ = fmt.Fprintln(w, help)
}

// newFunctionCompleter creates a readline completer for function names
// and dot-commands.
func newFunctionCompleter(reg *rules.Registry) *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, reg.Len()+7)
	for _, rule := range reg.Rules() {
		items = append(items, readline.PcItem(rule.Name+"("))
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".rules"),
		readline.PcItem(".rule"),
		readline.PcItem(".denied"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}
