// Package output writes rendered results to a file or stdout.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Writer sends rendered output to Path when set, else to Stdout. Status
// lines go to Stderr.
type Writer struct {
	Path   string
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Writer on the process streams.
func New(path string) *Writer {
	return &Writer{Path: path, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Write emits content.
func (w *Writer) Write(content string) error {
	if w.Path == "" {
		_, err := fmt.Fprintln(w.Stdout, content)
		return err
	}
	if dir := filepath.Dir(w.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(w.Path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	fmt.Fprintf(w.Stderr, "Output written to: %s\n", w.Path)
	return nil
}

// InferFormat maps an output file extension to a format name, or "".
func InferFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".txt":
		return "text"
	case ".csv":
		return "csv"
	default:
		return ""
	}
}

// ResolveFormat picks the explicit format, else the one implied by the
// file extension, else def.
func ResolveFormat(flagFormat, path, def string) string {
	if flagFormat != "" {
		return flagFormat
	}
	if f := InferFormat(path); f != "" {
		return f
	}
	return def
}
