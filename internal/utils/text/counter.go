// Package text provides rune-aware helpers for counting and truncating text.
// Limits in this module (post ceiling, excerpt caps, payload caps) are all
// expressed in Unicode characters, never bytes, so Japanese copy and emoji are
// measured the same way a reader would count them.
package text

import (
	"strings"
	"unicode/utf8"
)

// CountRunes counts the number of Unicode characters (runes) in the given text.
//
// Examples:
//
//	CountRunes("hello")      // 5
//	CountRunes("こんにちは") // 5
//	CountRunes("Hello👋")    // 6
func CountRunes(text string) int {
	return utf8.RuneCountInString(text)
}

// TruncateRunes returns at most max runes of text. It never splits a rune.
func TruncateRunes(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(text) <= max {
		// byte length bounds rune length
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

// TruncateWithSuffix cuts text to max runes including suffix.
// Text that already fits is returned unchanged.
func TruncateWithSuffix(text string, max int, suffix string) string {
	if CountRunes(text) <= max {
		return text
	}
	keep := max - CountRunes(suffix)
	if keep <= 0 {
		return TruncateRunes(suffix, max)
	}
	return TruncateRunes(text, keep) + suffix
}

// Squash collapses every run of whitespace (including newlines) into a single space.
func Squash(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
