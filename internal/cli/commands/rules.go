package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/daxport/internal/cli/output"
	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/spf13/cobra"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Kind   string // Filter by kind: rewrite, identity, annotated, comment
	Denied bool   // List the denylist instead of the rules
}

// RuleInfo is the structured form of one rule.
type RuleInfo struct {
	Name   string `json:"name" yaml:"name"`
	Arity  string `json:"arity" yaml:"arity"`
	Kind   string `json:"kind" yaml:"kind"`
	Note   string `json:"note,omitempty" yaml:"note,omitempty"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// DeniedInfo is the structured form of one denied function.
type DeniedInfo struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// RulesJSONOutput is the JSON output structure for rules listing.
type RulesJSONOutput struct {
	Rules  []RuleInfo   `json:"rules" yaml:"rules"`
	Denied []DeniedInfo `json:"denied" yaml:"denied"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules [function]",
		Short: "List translation rules",
		Long: `List the DAX functions daxport knows how to translate, including rules
added through the rules section of daxport.yaml, and the functions it
refuses to translate.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON/YAML: Machine-readable format`,
		Example: `  # List all rules
  daxport rules

  # Show one function
  daxport rules DIVIDE

  # Only approximations that need review
  daxport rules --kind annotated

  # Functions that are never translated
  daxport rules --denied`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return showRule(cmd, args[0])
			}
			return listRules(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "Filter by kind: rewrite, identity, annotated, comment")
	cmd.Flags().BoolVar(&opts.Denied, "denied", false, "List denied functions")

	return cmd
}

func ruleInfo(rule rules.Rule) RuleInfo {
	return RuleInfo{
		Name:   rule.Name,
		Arity:  rule.Arity(),
		Kind:   rule.Kind.String(),
		Note:   rule.Note,
		Source: rule.Source,
	}
}

func listRules(cmd *cobra.Command, opts *RulesOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	tr, err := cmdCtx.Translator()
	if err != nil {
		return err
	}
	reg := tr.Registry()

	out := RulesJSONOutput{Rules: []RuleInfo{}, Denied: []DeniedInfo{}}
	if !opts.Denied {
		for _, rule := range reg.Rules() {
			if opts.Kind != "" && rule.Kind.String() != opts.Kind {
				continue
			}
			out.Rules = append(out.Rules, ruleInfo(rule))
		}
	}
	if opts.Denied || opts.Kind == "" {
		for _, d := range reg.Denylist() {
			out.Denied = append(out.Denied, DeniedInfo{Name: d.Name, Category: string(d.Category)})
		}
	}

	if ok, err := r.Structured(out); ok || err != nil {
		return err
	}

	switch r.EffectiveMode() {
	case output.ModeMarkdown:
		listRulesMarkdown(r, out)
	default:
		listRulesText(r, out)
	}
	return nil
}

// listRulesText outputs rules in styled text format.
func listRulesText(r *output.Renderer, out RulesJSONOutput) {
	styles := r.Styles()

	if len(out.Rules) > 0 {
		r.Println("")
		r.Println(styles.Header1.Render(fmt.Sprintf("Translation Rules (%d)", len(out.Rules))))
		r.Println("")
		for _, rule := range out.Rules {
			r.Printf("  %-22s %s  %s\n", rule.Name, styles.Muted.Render(rule.Arity), kindStyle(r, rule.Kind))
			if rule.Source != "" {
				r.Println(styles.Muted.Render("      from " + rule.Source))
			}
		}
	}

	if len(out.Denied) > 0 {
		r.Println("")
		r.Println(styles.Header2.Render(fmt.Sprintf("Denied Functions (%d)", len(out.Denied))))
		category := ""
		for _, d := range out.Denied {
			if d.Category != category {
				category = d.Category
				r.Println("")
				r.Println(styles.Bold.Render("  " + capitalizeFirst(category)))
			}
			r.Println("    " + styles.Error.Render(d.Name))
		}
	}

	r.Println("")
	r.Println(styles.Muted.Render("Use 'daxport rules <function>' for details"))
	r.Println("")
}

// listRulesMarkdown outputs rules in markdown format.
func listRulesMarkdown(r *output.Renderer, out RulesJSONOutput) {
	if len(out.Rules) > 0 {
		r.Println("# Translation Rules")
		r.Println("")
		rows := make([][]string, 0, len(out.Rules))
		for _, rule := range out.Rules {
			rows = append(rows, []string{rule.Name, rule.Arity, rule.Kind, rule.Source})
		}
		r.Table([]string{"Function", "Arity", "Kind", "Source"}, rows)
		r.Println("")
	}

	if len(out.Denied) > 0 {
		r.Println("# Denied Functions")
		r.Println("")
		category := ""
		for _, d := range out.Denied {
			if d.Category != category {
				category = d.Category
				r.Println("")
				r.Println("## " + capitalizeFirst(category))
				r.Println("")
			}
			r.Printf("- `%s`\n", d.Name)
		}
		r.Println("")
	}
}

func showRule(cmd *cobra.Command, name string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	tr, err := cmdCtx.Translator()
	if err != nil {
		return err
	}
	reg := tr.Registry()

	if category, ok := reg.Denied(name); ok {
		info := DeniedInfo{Name: strings.ToUpper(name), Category: string(category)}
		if ok, err := r.Structured(info); ok || err != nil {
			return err
		}
		r.Printf("%s is never translated (%s); it needs a manual implementation.\n",
			r.Styles().Error.Render(info.Name), info.Category)
		return nil
	}

	rule, ok := reg.Lookup(name)
	if !ok {
		return fmt.Errorf("no rule for function %q", name)
	}
	info := ruleInfo(rule)

	if ok, err := r.Structured(info); ok || err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Printf("# %s\n\n", info.Name)
		r.Printf("**Arity:** `%s` | **Kind:** %s\n\n", info.Arity, info.Kind)
		if info.Note != "" {
			r.Println("> " + info.Note)
			r.Println("")
		}
		if info.Source != "" {
			r.Printf("Defined in `%s`.\n", info.Source)
		}
		return nil
	}

	styles := r.Styles()
	r.Println("")
	r.Println(styles.Header1.Render(info.Name))
	r.Println("")
	r.Printf("  %s: %s\n", styles.Bold.Render("Arity"), info.Arity)
	r.Printf("  %s: %s\n", styles.Bold.Render("Kind"), kindStyle(r, info.Kind))
	if info.Note != "" {
		r.Printf("  %s: %s\n", styles.Bold.Render("Review"), info.Note)
	}
	if info.Source != "" {
		r.Printf("  %s: %s\n", styles.Bold.Render("Source"), info.Source)
	}
	r.Println("")
	return nil
}

func kindStyle(r *output.Renderer, kind string) string {
	styles := r.Styles()
	switch kind {
	case "annotated", "comment":
		return styles.Warning.Render(kind)
	case "rewrite":
		return styles.Info.Render(kind)
	default:
		return styles.Muted.Render(kind)
	}
}

// capitalizeFirst capitalizes the first letter of a string.
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
