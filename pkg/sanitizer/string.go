// Package sanitizer normalizes free-text input before validation and
// storage. All functions are idempotent and never return errors; invalid
// input degrades to the empty string.
package sanitizer

import (
	"strings"
	"unicode"
)

// TrimAndNormalize trims the string, collapses runs of whitespace into
// single spaces, and drops control characters.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		case unicode.IsControl(r):
			continue
		default:
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

func NormalizeDescription(description string) string {
	return TrimAndNormalize(description)
}
