package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", true, ModeText},
		{"bogus", false, ModeMarkdown},
		{ModeText, false, ModeText},
		{ModeMarkdown, true, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeYAML, false, ModeYAML},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRendererDetectsNonTerminal(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestStylesPlainWithoutTerminal(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeText)

	assert.Equal(t, "Header", r.Styles().Header1.Render("Header"))
	assert.Equal(t, "warn", r.Styles().Warning.Render("warn"))
}

func TestTable(t *testing.T) {
	headers := []string{"Name", "Status"}
	rows := [][]string{{"Total", "translated"}, {"Top", "unsupported"}}

	t.Run("markdown", func(t *testing.T) {
		var out bytes.Buffer
		NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeMarkdown).Table(headers, rows)

		got := out.String()
		assert.Contains(t, got, "| Name | Status |")
		assert.Contains(t, got, "| Top | unsupported |")
	})

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		NewRendererWithTTY(&out, &bytes.Buffer{}, true, ModeText).Table(headers, rows)

		got := out.String()
		assert.Contains(t, got, "NAME")
		assert.Contains(t, got, "translated")
		assert.Contains(t, got, "┌")
	})
}

func TestStructured(t *testing.T) {
	v := map[string]any{"sql": "a < b", "count": 2}

	var out bytes.Buffer
	ok, err := NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeJSON).Structured(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"sql": "a < b", "count": 2}`, out.String())
	assert.Contains(t, out.String(), "a < b", "HTML characters are not escaped")

	out.Reset()
	ok, err = NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeYAML).Structured(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "count: 2\nsql: a < b\n", out.String())

	out.Reset()
	ok, err = NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeMarkdown).Structured(v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out.String())
}

func TestWarnAndPrint(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeText)

	r.Println("hello")
	r.Printf("%d items\n", 3)
	r.Warn("careful")

	assert.Equal(t, "hello\n3 items\n", out.String())
	assert.Equal(t, "warning: careful\n", errOut.String())
	assert.False(t, strings.Contains(errOut.String(), "\x1b["))
}
