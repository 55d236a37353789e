package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// nbformat v4 document.
type notebook struct {
	Cells         []any          `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

type markdownCell struct {
	ID       string         `json:"id"`
	CellType string         `json:"cell_type"`
	Metadata map[string]any `json:"metadata"`
	Source   []string       `json:"source"`
}

type codeCell struct {
	ID             string         `json:"id"`
	CellType       string         `json:"cell_type"`
	ExecutionCount *int           `json:"execution_count"`
	Metadata       map[string]any `json:"metadata"`
	Outputs        []any          `json:"outputs"`
	Source         []string       `json:"source"`
}

var cellNamespace = uuid.MustParse("5b1e7c1a-58c4-4b36-9d0b-6f1f3b8a2d40")

// WriteNotebook writes an nbformat v4 notebook: a markdown header cell and
// one %sql cell per view. Cell ids derive from the model and table names so
// regenerating a notebook produces a stable diff.
func (art *Artifacts) WriteNotebook(w io.Writer) error {
	title := cases.Title(language.English, cases.NoLower)
	sum := art.Summary()

	header := fmt.Sprintf("# %s Semantic Layer\n\n"+
		"Generated views for `%s.%s` from source schema `%s`.\n\n"+
		"%d tables, %d expressions: %d translated, %d unsupported, %d failed, %d flagged for review.",
		title.String(art.modelName()),
		art.cfg.Catalog, art.cfg.Schema, art.cfg.SourceSchema,
		sum.Tables, sum.Total(), sum.Translated, sum.Unsupported, sum.Failed, sum.Flagged)

	nb := notebook{
		Metadata: map[string]any{
			"language_info": map[string]any{"name": "sql"},
		},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
	nb.Cells = append(nb.Cells, markdownCell{
		ID:       art.cellID(""),
		CellType: "markdown",
		Metadata: map[string]any{},
		Source:   sourceLines(header),
	})
	for _, v := range art.Views {
		nb.Cells = append(nb.Cells, codeCell{
			ID:       art.cellID(v.Table),
			CellType: "code",
			Metadata: map[string]any{},
			Outputs:  []any{},
			Source:   sourceLines("%sql\n" + strings.TrimRight(art.Script(v), "\n")),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)
	return enc.Encode(nb)
}

func (art *Artifacts) cellID(table string) string {
	id := uuid.NewSHA1(cellNamespace, []byte(art.modelName()+"\x00"+table))
	return id.String()[:8]
}

// sourceLines splits text the way nbformat stores cell sources: every line
// but the last keeps its newline.
func sourceLines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
