package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanFreeText strips markup from visitor input, unescapes entities and trims the result.
// A positive maxRunes truncates on a rune boundary.
func CleanFreeText(value string, maxRunes int) string {
	cleaned := strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxRunes]))
	}
	return cleaned
}
