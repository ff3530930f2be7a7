// Package truncate shortens CLI output for error messages and logs.
//
// Lengths are counted in runes so multi-byte characters are never split.
package truncate

import (
	"strings"
	"unicode/utf8"
)

// Strategy defines which part of the text is dropped.
type Strategy int

const (
	// FromEnd keeps the start of the text.
	FromEnd Strategy = iota

	// FromStart keeps the end of the text. CLI output is most useful near
	// the prompt, so error tails use this.
	FromStart
)

// Marker replaces the dropped text.
const Marker = "..."

// Runes shortens text to at most maxLen runes, marker included, and reports
// whether anything was dropped.
func Runes(text string, maxLen int, s Strategy) (string, bool) {
	if maxLen <= 0 {
		return "", text != ""
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return text, false
	}

	runes := []rune(text)
	keep := maxLen - len(Marker)
	if keep <= 0 {
		return string(runes[len(runes)-maxLen:]), true
	}

	switch s {
	case FromStart:
		return Marker + string(runes[len(runes)-keep:]), true
	default:
		return string(runes[:keep]) + Marker, true
	}
}

// Tail returns at most maxLen runes from the end of text, trimmed.
func Tail(text string, maxLen int) string {
	out, _ := Runes(strings.TrimSpace(text), maxLen, FromStart)
	return out
}

// Line returns the first line of text shortened to maxLen runes, with a
// count of the lines that were dropped.
func Line(text string, maxLen int) (string, int) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	first, _ := Runes(strings.TrimSpace(lines[0]), maxLen, FromEnd)
	return first, len(lines) - 1
}
