package jsonvalue

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b([^>]*)>(.*?)</script>`)
	scriptIDRe   = regexp.MustCompile(`(?i)\bid\s*=\s*["']([^"']+)["']`)
	assignmentRe = regexp.MustCompile(`(?s)^\s*(?:(?:var|let|const)\s+)?[\w$.\[\]"']+\s*=\s*`)
)

// Script is one inline <script> block.
type Script struct {
	ID   string
	Body string
}

// Scripts returns the inline script blocks of a page in document order.
func Scripts(page string) []Script {
	var out []Script
	for _, m := range scriptRe.FindAllStringSubmatch(page, -1) {
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		s := Script{Body: body}
		if id := scriptIDRe.FindStringSubmatch(m[1]); id != nil {
			s.ID = id[1]
		}
		out = append(out, s)
	}
	return out
}

// ScriptByID returns the body of the script with the given id.
func ScriptByID(page, id string) (string, bool) {
	for _, s := range Scripts(page) {
		if s.ID == id {
			return s.Body, true
		}
	}
	return "", false
}

// ParseScript parses a script body that is either plain JSON or a single
// assignment such as `window.__STATE__ = {...};`.
func ParseScript(body string) (*Value, error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "<!--") {
		body = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(body, "<!--"), "-->"))
	}
	if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
		if loc := assignmentRe.FindStringIndex(body); loc != nil {
			body = body[loc[1]:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, ";")
	if strings.HasPrefix(body, "{&quot;") || strings.HasPrefix(body, "[&quot;") {
		body = html.UnescapeString(body)
	}
	return Parse([]byte(body))
}

// LooksLikeJSON reports whether a script body is worth handing to ParseScript.
func LooksLikeJSON(body string) bool {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
		return true
	}
	loc := assignmentRe.FindStringIndex(body)
	if loc == nil {
		return false
	}
	rest := strings.TrimSpace(body[loc[1]:])
	return strings.HasPrefix(rest, "{") || strings.HasPrefix(rest, "[")
}
