package artifact

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/leapstack-labs/daxport/pkg/sqlgen"
	"github.com/leapstack-labs/daxport/pkg/translate"
)

// Script renders the SQL for one view.
func (art *Artifacts) Script(v View) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Semantic View for: %s\n", v.Table)
	fmt.Fprintf(&sb, "-- Columns: %s\n", strings.Join(v.Columns, ", "))
	for _, slot := range v.Slots {
		for _, note := range slot.Review {
			fmt.Fprintf(&sb, "-- review: %s: %s\n", slot.Expression.Name, oneLine(note))
		}
	}

	if !art.cfg.Materialize {
		for _, slot := range v.Slots {
			if slot.Translated() {
				fmt.Fprintf(&sb, "-- %s = %s\n", slot.Expression.Name, oneLine(slot.Result.SQL))
			} else {
				fmt.Fprintf(&sb, "-- %s requires manual implementation: %s\n", slot.Expression.Name, oneLine(slot.Result.Reason()))
			}
		}
		return sb.String()
	}

	// Placeholders sit between select items without commas, so the last
	// real item decides where the trailing comma stops.
	type line struct {
		text string
		item bool
	}
	var lines []line
	for _, c := range v.Columns {
		lines = append(lines, line{text: sqlgen.QuoteIdent(c), item: true})
	}
	for _, slot := range v.Slots {
		if slot.Translated() {
			lines = append(lines, line{text: slot.Result.SQL + " AS " + sqlgen.QuoteIdent(slot.Expression.Name), item: true})
			continue
		}
		lines = append(lines, line{text: placeholder(slot)})
	}
	last := -1
	for i, l := range lines {
		if l.item {
			last = i
		}
	}

	fmt.Fprintf(&sb, "CREATE OR REPLACE VIEW %s AS\nSELECT\n",
		sqlgen.QualifiedName(art.cfg.Catalog, art.cfg.Schema, v.Table+"_semantic"))
	if last < 0 {
		sb.WriteString("    *\n")
	}
	for i, l := range lines {
		sb.WriteString("    ")
		sb.WriteString(l.text)
		if l.item && i < last {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "FROM %s;\n", sqlgen.QualifiedName(art.cfg.Catalog, art.cfg.SourceSchema, v.Table))
	return sb.String()
}

func placeholder(slot Slot) string {
	return rules.BlockComment(fmt.Sprintf("%s for %s: %s",
		translate.ManualMarker, slot.Expression.Name, oneLine(slot.Result.Reason())))
}

// WriteSQL writes every view script into one SQL file.
func (art *Artifacts) WriteSQL(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "-- Semantic layer generated from %s\n", art.modelName()); err != nil {
		return err
	}
	for _, v := range art.Views {
		if _, err := fmt.Fprintf(bw, "\n%s", art.Script(v)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write writes the configured output format.
func (art *Artifacts) Write(w io.Writer) error {
	switch art.cfg.Output {
	case FormatNotebook:
		return art.WriteNotebook(w)
	case FormatSQL, "":
		return art.WriteSQL(w)
	default:
		return fmt.Errorf("unknown output format %q", art.cfg.Output)
	}
}

func (art *Artifacts) modelName() string {
	if art.Model == "" {
		return "model"
	}
	return art.Model
}
