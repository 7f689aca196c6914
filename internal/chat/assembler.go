package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// assembler re-segments arbitrary transport fragments into whole-word
// increments. Fragments are appended to a carry buffer; everything up to
// the last whitespace boundary is committed, the trailing partial token
// stays buffered for the next fragment. Word-granularity commits avoid
// rendering broken partial tokens mid-stream.
type assembler struct {
	committed strings.Builder
	carry     string
}

// Feed appends a fragment and commits up to the last word boundary.
// Returns the full accumulated text and whether it grew. The returned
// text is always a prefix-extension of the previous call's text.
func (a *assembler) Feed(fragment string) (string, bool) {
	a.carry += fragment

	idx := lastBoundary(a.carry)
	if idx < 0 {
		return a.committed.String(), false
	}

	// Cut after the boundary rune; whitespace may be multi-byte.
	_, size := utf8.DecodeRuneInString(a.carry[idx:])
	cut := idx + size

	a.committed.WriteString(a.carry[:cut])
	a.carry = a.carry[cut:]
	return a.committed.String(), true
}

// Flush commits any remaining buffered content, even if it looks like an
// incomplete word, and returns the final accumulated text. Called at end
// of stream so no characters are lost.
func (a *assembler) Flush() string {
	if a.carry != "" {
		a.committed.WriteString(a.carry)
		a.carry = ""
	}
	return a.committed.String()
}

// Text returns the committed text without flushing the carry buffer.
func (a *assembler) Text() string {
	return a.committed.String()
}

// lastBoundary returns the byte index of the last whitespace rune, or -1.
func lastBoundary(s string) int {
	return strings.LastIndexFunc(s, unicode.IsSpace)
}
