package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStdout(t *testing.T) {
	var out, errOut bytes.Buffer
	w := &Writer{Stdout: &out, Stderr: &errOut}
	require.NoError(t, w.Write("hello"))
	assert.Equal(t, "hello\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestWriteFile(t *testing.T) {
	var out, errOut bytes.Buffer
	path := filepath.Join(t.TempDir(), "nested", "result.json")
	w := &Writer{Path: path, Stdout: &out, Stderr: &errOut}
	require.NoError(t, w.Write(`{"ok":true}`))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(raw))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Output written to: "+path)
}

func TestInferFormat(t *testing.T) {
	tests := map[string]string{
		"out.md":       "markdown",
		"out.MARKDOWN": "markdown",
		"out.json":     "json",
		"out.csv":      "csv",
		"out.txt":      "text",
		"out.html":     "",
		"out":          "",
	}
	for name, want := range tests {
		assert.Equal(t, want, InferFormat(name), name)
	}
}

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, "csv", ResolveFormat("csv", "x.json", "text"))
	assert.Equal(t, "json", ResolveFormat("", "x.json", "text"))
	assert.Equal(t, "text", ResolveFormat("", "", "text"))
}
