package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want Mode
	}{
		{ModeAuto, ModeMarkdown},
		{"", ModeMarkdown},
		{ModeText, ModeText},
		{ModeJSON, ModeJSON},
		{ModeMarkdown, ModeMarkdown},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestRenderer_PlainWhenNotTerminal(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRenderer(&out, &errOut, ModeText)

	r.Header(1, "Dependency Graph")
	r.Success("done")
	r.StatusLine("users", "failed", "boom")
	r.Warning("careful")

	assert.NotContains(t, out.String(), "\x1b[", "no ANSI escapes outside a terminal")
	assert.Contains(t, out.String(), "Dependency Graph\n\n")
	assert.Contains(t, out.String(), "✓ done")
	assert.Contains(t, out.String(), "✗ users  boom")
	assert.Equal(t, "! careful\n", errOut.String())
}

func TestRenderer_Table(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &out, ModeMarkdown)
	r.Table([]string{"Table", "Status"}, [][]string{{"users", "completed"}})

	assert.Contains(t, out.String(), "| Table | Status |")
	assert.Contains(t, out.String(), "| users | completed |")

	out.Reset()
	r = NewRenderer(&out, &out, ModeText)
	r.Table([]string{"Table"}, [][]string{{"users"}})
	assert.Contains(t, out.String(), "│ users │")
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &out, ModeJSON)
	require.NoError(t, r.JSON(MigrateOutput{GenerationID: 3, Created: true, Affected: []string{"a"}}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, float64(3), got["generation_id"])
	assert.Equal(t, true, got["created"])
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "## Levels", FormatHeader(2, "Levels"))
	assert.Equal(t, "- **Nodes**: 4", FormatKeyValue("Nodes", "4"))
	assert.Equal(t, "-", FormatList(nil))
	assert.Equal(t, "a, b", FormatList([]string{"a", "b"}))
}
