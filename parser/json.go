package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONFound indicates the text holds no JSON value of the requested kind.
var ErrNoJSONFound = errors.New("no JSON found")

// Kind is the top-level JSON shape to extract.
type Kind int

// Supported kinds.
const (
	KindArray Kind = iota
	KindObject
)

// String returns "array" or "object".
func (k Kind) String() string {
	if k == KindObject {
		return "object"
	}
	return "array"
}

func (k Kind) opening() byte {
	if k == KindObject {
		return '{'
	}
	return '['
}

// maxDecoyDigits bounds how long a bracketed number may be and still be
// treated as a count banner rather than data.
const maxDecoyDigits = 10

// ExtractJSON returns the first JSON value of the given kind embedded in
// text.
//
// Candidates start at each opening bracket of the kind. Short bracketed
// numbers such as "[12]" are skipped. A candidate ends at its matching close
// bracket, counting depth outside string literals, and is accepted only if
// it is valid JSON with the hallmark of real data: a nested object for
// arrays, a key separator for objects. An empty "[]" or "{}" is accepted.
//
// If no array is found, ExtractJSON rebuilds one from balanced objects that
// begin lines of their own, which recovers arrays whose elements were split
// by interleaved output.
func ExtractJSON(text string, kind Kind) (string, error) {
	opening := kind.opening()
	pairs := make(map[int]int)

	for start := 0; start < len(text); {
		i := strings.IndexByte(text[start:], opening)
		if i < 0 {
			break
		}
		i += start
		start = i + 1

		if kind == KindArray && isNumericDecoy(text[i:]) {
			continue
		}

		end := closeOf(text, i, pairs)
		if end < 0 {
			continue
		}

		span := text[i : end+1]
		if hasHallmark(span, kind) && json.Valid([]byte(span)) {
			return span, nil
		}
	}

	if kind == KindArray {
		if span, ok := rebuildArray(text, pairs); ok {
			return span, nil
		}
	}

	return "", fmt.Errorf("%w: no JSON %s in output", ErrNoJSONFound, kind)
}

// ExtractInto extracts the first JSON value of the given kind and
// unmarshals it into v.
func ExtractInto(text string, kind Kind, v any) error {
	span, err := ExtractJSON(text, kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return fmt.Errorf("decode JSON %s: %w", kind, err)
	}
	return nil
}

// isNumericDecoy reports whether s starts with a bracketed short decimal
// number like "[12]" or "[ 3 ]".
func isNumericDecoy(s string) bool {
	j := 1
	for j < len(s) && s[j] == ' ' {
		j++
	}
	digits := 0
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
		digits++
	}
	for j < len(s) && s[j] == ' ' {
		j++
	}
	return digits > 0 && digits <= maxDecoyDigits && j < len(s) && s[j] == ']'
}

// closeOf returns the index of the bracket closing the one at text[start],
// or -1 if it is never closed. Brackets inside string literals are ignored.
// Results are cached in pairs so repeated lookups over the same text stay
// linear.
func closeOf(text string, start int, pairs map[int]int) int {
	if end, ok := pairs[start]; ok {
		return end
	}
	pairBrackets(text, start, pairs)
	return pairs[start]
}

// pairBrackets scans from the opener at text[start] and records the closing
// index of every opener it passes outside string literals, or -1 for those
// never closed. It stops once the opener at start is closed. Bracket kinds
// are not distinguished; json.Valid rejects mismatched spans later.
func pairBrackets(text string, start int, pairs map[int]int) {
	var (
		stack    []int
		inString bool
		escaped  bool
	)

	for i := start; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '[', '{':
			stack = append(stack, i)
		case ']', '}':
			if len(stack) == 0 {
				return
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pairs[open] = i
			if len(stack) == 0 {
				return
			}
		}
	}

	for _, open := range stack {
		pairs[open] = -1
	}
}

// hasHallmark reports whether span looks like data of the given kind.
func hasHallmark(span string, kind Kind) bool {
	inner := strings.TrimSpace(span[1 : len(span)-1])
	if inner == "" {
		return true
	}
	if kind == KindObject {
		return strings.Contains(inner, ":")
	}
	return strings.Contains(inner, "{")
}

// rebuildArray collects balanced objects that start lines of text (after
// optional "[" or "," separators) and joins them into one array.
func rebuildArray(text string, pairs map[int]int) (string, bool) {
	var objects []string

	for pos := 0; pos < len(text); {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		if lineEnd < 0 {
			lineEnd = len(text)
		} else {
			lineEnd += pos
		}

		i := pos
		for i < lineEnd && strings.IndexByte(" \t\r[,", text[i]) >= 0 {
			i++
		}
		if i < lineEnd && text[i] == '{' {
			if end := closeOf(text, i, pairs); end >= 0 {
				obj := text[i : end+1]
				if json.Valid([]byte(obj)) {
					objects = append(objects, obj)
					pos = end + 1
					continue
				}
			}
		}

		pos = lineEnd + 1
	}

	if len(objects) == 0 {
		return "", false
	}
	return "[" + strings.Join(objects, ",") + "]", true
}
