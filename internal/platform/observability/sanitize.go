package observability

import (
	"strings"
	"unicode"
)

// Caps for request attributes copied into logs and spans.
const (
	maxPathLen   = 180
	maxMethodLen = 10
	maxIDLen     = 64
)

// clean drops control characters and keeps at most limit runes, so request input cannot forge
// log lines.
func clean(value string, limit int) string {
	var b strings.Builder
	kept := 0
	for _, r := range value {
		if kept == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		kept++
	}
	return b.String()
}

// pathAttr renders a request path or chi route pattern.
func pathAttr(path string) string {
	if path = clean(path, maxPathLen); path == "" {
		return "/"
	}
	return path
}

func methodAttr(method string) string {
	return strings.ToUpper(clean(method, maxMethodLen))
}

// idAttr renders device ids and remote addresses.
func idAttr(id string) string {
	return clean(strings.TrimSpace(id), maxIDLen)
}
