// Package topics extracts topic tokens from free text.
package topics

import (
	"strings"
	"unicode/utf8"
)

// MinRunes is the length a token must exceed to count as a topic.
const MinRunes = 3

// Extract splits text on whitespace, lowercases each token and keeps those
// longer than MinRunes runes. Order and duplicates are preserved.
func Extract(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if utf8.RuneCountInString(f) > MinRunes {
			out = append(out, f)
		}
	}
	return out
}
