package transcribe

import (
	"regexp"
	"strings"
)

var (
	bracketedPattern     = regexp.MustCompile(`\[.*?\]`)
	parenthesizedPattern = regexp.MustCompile(`\(.*?\)`)
	disallowedPattern    = regexp.MustCompile(`[^a-zA-Z0-9.,?!\s:'\-]`)
)

// Clean strips recognizer annotations such as [BLANK_AUDIO] or (music),
// drops characters outside letters, digits, whitespace and .,?!:'- keeps the
// first line and trims surrounding whitespace.
func Clean(text string) string {
	text = bracketedPattern.ReplaceAllString(text, "")
	text = parenthesizedPattern.ReplaceAllString(text, "")
	text = disallowedPattern.ReplaceAllString(text, "")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
