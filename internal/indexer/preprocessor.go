package indexer

import (
	"strings"
	"unicode"
)

// Preprocess cleans extracted page text before embedding. Words hyphenated across a line
// break are rejoined, control characters dropped, and whitespace runs collapsed to one space.
func Preprocess(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '-' && i > 0 && unicode.IsLetter(runes[i-1]) {
			if j := skipLineBreak(runes, i+1); j > 0 && j < len(runes) && unicode.IsLower(runes[j]) {
				i = j - 1
				continue
			}
		}
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r) || r == '\uFFFD':
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// skipLineBreak returns the index after horizontal space and exactly one line break starting
// at i, or -1 when no line break follows.
func skipLineBreak(runes []rune, i int) int {
	for i < len(runes) && (runes[i] == ' ' || runes[i] == '\t') {
		i++
	}
	if i >= len(runes) || (runes[i] != '\n' && runes[i] != '\r') {
		return -1
	}
	if runes[i] == '\r' && i+1 < len(runes) && runes[i+1] == '\n' {
		i++
	}
	i++
	for i < len(runes) && (runes[i] == ' ' || runes[i] == '\t') {
		i++
	}
	return i
}
