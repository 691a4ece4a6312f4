package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want Mode
	}{
		{mode: "", want: ModeMarkdown},
		{mode: ModeAuto, want: ModeMarkdown},
		{mode: ModeText, want: ModeText},
		{mode: ModeMarkdown, want: ModeMarkdown},
		{mode: ModeJSON, want: ModeJSON},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r := NewRenderer(new(bytes.Buffer), new(bytes.Buffer), tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestRenderer_Table(t *testing.T) {
	headers := []string{"Common Name", "Status"}
	rows := [][]string{{"a.example.com", "Submitted"}, {"b.example.com", "Approved"}}

	t.Run("markdown", func(t *testing.T) {
		buf := new(bytes.Buffer)
		NewRenderer(buf, buf, ModeMarkdown).Table(headers, rows)
		out := buf.String()
		assert.Contains(t, strings.ToLower(out), "| common name | status |")
		assert.Contains(t, out, "| a.example.com | Submitted |")
	})

	t.Run("text", func(t *testing.T) {
		buf := new(bytes.Buffer)
		NewRenderer(buf, buf, ModeText).Table(headers, rows)
		out := buf.String()
		assert.Contains(t, out, "┌")
		assert.Contains(t, out, "b.example.com")
		assert.Contains(t, out, "COMMON NAME")
	})
}

func TestRenderer_Notices(t *testing.T) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	r := NewRenderer(out, errOut, ModeMarkdown)

	r.Header(2, "Certificates")
	r.Success("exported 3 rows")
	r.Warning("nothing to export")
	r.Muted("page 1 of 1")
	r.Error("store unavailable")

	assert.Equal(t, "## Certificates\n\nexported 3 rows\nnothing to export\npage 1 of 1\n", out.String())
	assert.Equal(t, "Error: store unavailable\n", errOut.String())
}

func TestRenderer_JSON(t *testing.T) {
	buf := new(bytes.Buffer)
	r := NewRenderer(buf, buf, ModeJSON)
	require.NoError(t, r.JSON(map[string]int{"total": 3}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got["total"])
}

func TestFormatHeader(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(1, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
}
