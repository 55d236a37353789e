package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/rules"
)

// generateRulesDocs writes the reference of built-in translation rules and
// the functions that are never translated.
func generateRulesDocs(outDir string) error {
	log.Printf("Generating rules docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	reg := rules.Default()
	w := NewMarkdownWriter()

	w.Frontmatter("Translation Rules", "DAX functions daxport translates and the ones it refuses")
	w.GeneratedMarker()

	w.Header(1, "Translation Rules")
	w.Paragraph(fmt.Sprintf("daxport ships %d built-in rules. Rules of kind `annotated` translate "+
		"with an approximation and flag the expression for review; rules of kind `comment` "+
		"emit a placeholder that must be completed by hand.", reg.Len()))

	byKind := map[string][][]string{}
	var kinds []string
	for _, rule := range reg.Rules() {
		kind := rule.Kind.String()
		if _, ok := byKind[kind]; !ok {
			kinds = append(kinds, kind)
		}
		byKind[kind] = append(byKind[kind], []string{InlineCode(rule.Name), rule.Arity(), cleanDescription(rule.Note)})
	}
	for _, kind := range kinds {
		w.Header(2, capitalize(kind))
		w.Table([]string{"Function", "Arity", "Note"}, byKind[kind])
	}

	w.Header(1, "Denied Functions")
	w.Paragraph("These functions have no faithful Databricks SQL equivalent. Any expression " +
		"using one is reported as unsupported and emitted as a stub.")

	var items []string
	category := rules.Category("")
	for _, d := range reg.Denylist() {
		if d.Category != category {
			if len(items) > 0 {
				w.BulletList(items)
				items = nil
			}
			category = d.Category
			w.Header(2, capitalize(string(category)))
		}
		items = append(items, InlineCode(d.Name))
	}
	if len(items) > 0 {
		w.BulletList(items)
	}

	w.Header(2, "Adding rules")
	w.Paragraph("Project rules go in the rules section of daxport.yaml or in Starlark scripts under rules.scripts_dir.")
	w.CodeBlock("yaml", `rules:
  deny: [PATH]
  templates:
    NULLZERO:
      template: "COALESCE({0}, 0)"
      min_args: 1
      max_args: 1`)

	filename := filepath.Join(outDir, "index.md")
	if err := os.WriteFile(filename, w.Bytes(), 0600); err != nil {
		return err
	}
	log.Printf("  Generated index.md")
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
