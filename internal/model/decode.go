package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a model document.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrNoTables is returned for documents without a tables list.
var ErrNoTables = errors.New("model has no tables")

// FormatFromPath picks the format from a file extension. The extension-less
// DataModelSchema entry of a .pbit archive is JSON.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".bim":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case "":
		if strings.EqualFold(filepath.Base(path), "DataModelSchema") {
			return FormatJSON, nil
		}
	}
	return "", fmt.Errorf("unsupported model file %q: expected .json, .bim, .yaml or .yml", filepath.Base(path))
}

// Load reads and normalizes a model file.
func Load(path string) (*Model, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// Parse decodes a model document. Input may be UTF-8 or, as Power BI writes
// DataModelSchema, UTF-16 with a byte order mark.
func Parse(r io.Reader, format Format) (*Model, error) {
	data, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var doc map[string]any
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unsupported model format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", format, err)
	}
	return normalize(doc)
}

func normalize(doc map[string]any) (*Model, error) {
	body := doc
	if inner, ok := doc["model"].(map[string]any); ok {
		body = inner
	}

	m := &Model{Name: str(doc["name"])}
	if m.Name == "" {
		m.Name = str(body["name"])
	}

	tables, ok := body["tables"].([]any)
	if !ok {
		return nil, ErrNoTables
	}
	for i, raw := range tables {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tables[%d]: expected an object", i)
		}
		t, err := normalizeTable(obj)
		if err != nil {
			return nil, fmt.Errorf("tables[%d]: %w", i, err)
		}
		m.Tables = append(m.Tables, t)
	}

	rels, _ := body["relationships"].([]any)
	for i, raw := range rels {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("relationships[%d]: expected an object", i)
		}
		m.Relationships = append(m.Relationships, normalizeRelationship(obj))
	}
	return m, nil
}

func normalizeTable(obj map[string]any) (Table, error) {
	t := Table{Name: str(obj["name"])}
	if t.Name == "" {
		return t, errors.New("missing table name")
	}

	for _, c := range objects(obj["columns"]) {
		name := str(c["name"])
		colType := strings.ToLower(str(c["type"]))
		if name == "" || colType == "rownumber" {
			continue
		}
		expr := text(c["expression"])
		if colType == "calculated" || colType == "calculatedtablecolumn" || boolean(c["isCalculated"], false) || expr != "" {
			t.CalculatedColumns = append(t.CalculatedColumns, CalculatedColumn{
				Table: t.Name, Name: name, Expression: expr, DataType: str(c["dataType"]),
			})
			continue
		}
		t.Columns = append(t.Columns, Column{Name: name, DataType: str(c["dataType"])})
	}

	// Already-normalized documents list calculated columns separately.
	for _, c := range objects(obj["calculatedColumns"]) {
		t.CalculatedColumns = append(t.CalculatedColumns, CalculatedColumn{
			Table: t.Name, Name: str(c["name"]), Expression: text(c["expression"]), DataType: str(c["dataType"]),
		})
	}

	for _, ms := range objects(obj["measures"]) {
		t.Measures = append(t.Measures, Measure{Table: t.Name, Name: str(ms["name"]), Expression: text(ms["expression"])})
	}

	for _, h := range objects(obj["hierarchies"]) {
		hier := Hierarchy{Name: str(h["name"])}
		levels, _ := h["levels"].([]any)
		for _, l := range levels {
			switch lv := l.(type) {
			case string:
				hier.Levels = append(hier.Levels, lv)
			case map[string]any:
				hier.Levels = append(hier.Levels, str(lv["name"]))
			}
		}
		t.Hierarchies = append(t.Hierarchies, hier)
	}
	return t, nil
}

func normalizeRelationship(obj map[string]any) Relationship {
	return Relationship{
		Name:       str(obj["name"]),
		FromTable:  str(obj["fromTable"]),
		FromColumn: str(obj["fromColumn"]),
		ToTable:    str(obj["toTable"]),
		ToColumn:   str(obj["toColumn"]),
		Active:     boolean(obj["isActive"], true),
		Raw:        obj,
	}
}

func objects(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// text reads an expression stored either as a string or as a list of lines.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		lines := make([]string, 0, len(t))
		for _, l := range t {
			lines = append(lines, fmt.Sprint(l))
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	default:
		return ""
	}
}

func boolean(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}
