package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/daxport/internal/cli"
	"github.com/leapstack-labs/daxport/internal/cli/config"
	"github.com/leapstack-labs/daxport/internal/cli/output"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// modeNotes describes what each output mode prints for the commands that
// report results. Every entry of config.OutputModes needs one.
var modeNotes = map[output.Mode][2]string{
	output.ModeAuto:     {"text on a terminal, markdown otherwise", "text on a terminal, markdown otherwise"},
	output.ModeText:     {"summary line on stderr", "box-drawn table of expressions and a summary line"},
	output.ModeMarkdown: {"summary line on stderr", "markdown table of expressions and a summary line"},
	output.ModeJSON:     {"summary line on stderr", "one JSON document with the summary and every expression"},
	output.ModeYAML:     {"summary line on stderr", "the JSON document as YAML"},
}

// generateCLIDocs writes one page per command plus the configuration
// reference, all derived from the command tree and the config package.
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	root := cli.NewRootCmd()
	flagKeys := configKeysByFlag()

	cfgPage, err := configurationPage()
	if err != nil {
		return err
	}
	pages := map[string][]byte{
		"index.md":         cliIndex(root, flagKeys),
		"configuration.md": cfgPage,
	}
	for _, cmd := range documented(root) {
		pages[cmd.Name()+".md"] = commandPage(cmd, flagKeys)
	}

	for name, body := range pages {
		if err := os.WriteFile(filepath.Join(outDir, name), body, 0600); err != nil {
			return err
		}
		log.Printf("  Generated %s", name)
	}
	return nil
}

// documented returns the visible subcommands of cmd.
func documented(cmd *cobra.Command) []*cobra.Command {
	var cmds []*cobra.Command
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || !sub.IsAvailableCommand() {
			continue
		}
		cmds = append(cmds, sub)
	}
	return cmds
}

func configKeysByFlag() map[string]string {
	byFlag := map[string]string{}
	for _, k := range config.Keys() {
		if k.Flag != "" {
			byFlag[k.Flag] = k.Name
		}
	}
	return byFlag
}

func cliIndex(root *cobra.Command, flagKeys map[string]string) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter("CLI Reference", root.Short)
	w.GeneratedMarker()

	w.Header(1, "CLI Reference")
	w.Paragraph(root.Long)
	w.CodeBlock("bash", "go install github.com/leapstack-labs/daxport/cmd/daxport@latest\ndaxport <command> [options]")

	var rows [][]string
	for _, cmd := range documented(root) {
		rows = append(rows, []string{
			fmt.Sprintf("[%s](%s.md)", InlineCode(cmd.Name()), cmd.Name()),
			strings.Join(cmd.Aliases, ", "),
			cleanDescription(cmd.Short),
		})
	}
	w.Table([]string{"Command", "Aliases", "Description"}, rows)

	w.Header(2, "Global Options")
	flagTable(w, root.PersistentFlags(), flagKeys)
	w.Paragraph("Options that set a configuration key override daxport.yaml and the environment. " +
		"See [Configuration](configuration.md) for every key.")

	w.Header(2, "Exit Status")
	w.Paragraph("daxport exits 0 on success and 1 on any error, which is printed to stderr. " +
		"Expressions that cannot be translated are reported, not treated as errors, "+
		"unless check runs with --strict.")
	return w.Bytes()
}

func commandPage(cmd *cobra.Command, flagKeys map[string]string) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter(cmd.Name(), cmd.Short)
	w.GeneratedMarker()

	w.Header(1, "daxport "+cmd.Name())
	if cmd.Long != "" {
		w.Paragraph(cmd.Long)
	} else {
		w.Paragraph(cmd.Short)
	}
	w.CodeBlock("bash", cmd.UseLine())

	if subs := documented(cmd); len(subs) > 0 {
		w.Header(2, "Subcommands")
		var rows [][]string
		for _, sub := range subs {
			rows = append(rows, []string{InlineCode(sub.Name()), cleanDescription(sub.Short)})
		}
		w.Table([]string{"Subcommand", "Description"}, rows)
	}

	if cmd.HasAvailableLocalFlags() {
		w.Header(2, "Options")
		flagTable(w, cmd.LocalNonPersistentFlags(), flagKeys)
	}

	if cmd.Example != "" {
		w.Header(2, "Examples")
		w.CodeBlock("bash", dedent(cmd.Example))
	}

	w.Paragraph("Global options are listed in the [CLI reference](index.md#global-options).")
	return w.Bytes()
}

// flagTable lists flags with the config key each one sets.
func flagTable(w *MarkdownWriter, flags *pflag.FlagSet, flagKeys map[string]string) {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "--" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", " + name
		}
		key := ""
		if k, ok := flagKeys[f.Name]; ok {
			key = InlineCode(k)
		}
		rows = append(rows, []string{InlineCode(name), f.Value.Type(), key, cleanDescription(f.Usage)})
	})
	w.Table([]string{"Option", "Type", "Config key", "Description"}, rows)
}

func configurationPage() ([]byte, error) {
	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "Configuration keys, environment variables and output modes")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("Settings are layered, lowest to highest: built-in defaults, daxport.yaml " +
		"(searched for from the working directory upward), " + config.EnvPrefix + "* environment " +
		"variables, then options given on the command line. Relative paths in daxport.yaml " +
		"resolve against the file's directory.")

	var rows [][]string
	for _, k := range config.Keys() {
		row := []string{InlineCode(k.Name), k.Type, "", "", ""}
		if k.Default != "" {
			row[2] = InlineCode(k.Default)
		}
		if k.Env != "" {
			row[3] = InlineCode(k.Env)
		}
		if k.Flag != "" {
			row[4] = InlineCode("--" + k.Flag)
		}
		rows = append(rows, row)
	}
	w.Table([]string{"Key", "Type", "Default", "Environment", "Option"}, rows)
	w.Paragraph("List values read from the environment are comma-separated. " +
		"rules.templates can only be set in daxport.yaml; see the rules reference for its shape.")

	w.Header(2, "Output Modes")
	w.Paragraph("The output key selects how convert and check report results. " +
		"convert always writes SQL or a notebook to stdout or --out; the mode only affects its summary.")
	var modes [][]string
	for _, m := range config.OutputModes {
		note, ok := modeNotes[output.Mode(m)]
		if !ok {
			return nil, fmt.Errorf("output mode %q is not documented", m)
		}
		modes = append(modes, []string{InlineCode(m), note[0], note[1]})
	}
	w.Table([]string{"Mode", "convert", "check"}, modes)
	return w.Bytes(), nil
}

// dedent strips the indentation cobra examples are written with.
func dedent(s string) string {
	lines := strings.Split(strings.Trim(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, "  ")
	}
	return strings.Join(lines, "\n")
}
