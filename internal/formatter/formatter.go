package formatter

import (
	"fmt"
)

// Content is a result that can render itself in every output format.
type Content interface {
	ToText() (string, error)
	ToMarkdown() (string, error)
	ToCSV() (string, error)
	ToJSON() ([]byte, error)
}

// Formats lists the accepted --format values.
var Formats = []string{"json", "csv", "markdown", "text"}

// Valid reports whether format is supported.
func Valid(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

func Format(content Content, format string) (string, error) {
	switch format {
	case "text":
		return content.ToText()
	case "markdown":
		return content.ToMarkdown()
	case "csv":
		return content.ToCSV()
	case "json":
		b, err := content.ToJSON()
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
