package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/daxport/internal/cli/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationPage(t *testing.T) {
	page, err := configurationPage()
	require.NoError(t, err)

	for _, want := range []string{
		"| `server.addr` | string | `127.0.0.1:8480` | `DAXPORT_SERVER_ADDR` | `--addr` |",
		"| `state_path` | string | `.daxport/state.db` | `DAXPORT_STATE_PATH` | `--state` |",
		"| `rules.templates` | map |  |  |  |",
	} {
		assert.Contains(t, string(page), want)
	}
	for _, mode := range config.OutputModes {
		assert.Contains(t, string(page), "| `"+mode+"` |")
	}
}

func TestGenerateCLIDocs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generateCLIDocs(dir))

	for _, name := range []string{"index.md", "configuration.md", "convert.md", "check.md", "translate.md"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	convert, err := os.ReadFile(filepath.Join(dir, "convert.md"))
	require.NoError(t, err)
	assert.Contains(t, string(convert), "| `--catalog` | string | `catalog` |")
	assert.Contains(t, string(convert), "daxport convert model.bim")
	assert.NotContains(t, string(convert), "  daxport convert model.bim")
}

func TestDedent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  a\n  b", "a\nb"},
		{"\n  # note\n  a\n\n  b\n", "# note\na\n\nb"},
		{"a", "a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dedent(tt.in))
	}
}
