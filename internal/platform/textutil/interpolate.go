package textutil

import "strings"

// Interpolate substitutes {{key}} tokens in template with values from data.
// Tokens without a matching key render as the empty string. Whitespace inside
// the braces is tolerated ({{ key }} and {{key}} are equivalent). Unterminated
// tokens are emitted verbatim.
func Interpolate(template string, data map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}

		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : start+end])
		b.WriteString(data[key])
		rest = rest[start+end+2:]
	}
}
