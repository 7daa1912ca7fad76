package stream

import (
	"strings"
	"unicode/utf8"
)

const (
	minSplitLength = 10
	paragraphBreak = "\n\n"
	fenceMarker    = "```"
	mathMarker     = "$$"
)

// FindSafeSplitIndex returns the offset just past the last paragraph break
// in text, or -1 when no break exists or committing up to it would leave a
// code fence or $$ math block open.
//
// Only the last break is considered. If it is unsafe the caller waits for
// more input rather than falling back to an earlier break. Escaped markers
// are counted like real ones.
func FindSafeSplitIndex(text string) int {
	if len(text) < minSplitLength || utf8.RuneCountInString(text) < minSplitLength {
		return -1
	}

	idx := strings.LastIndex(text, paragraphBreak)
	if idx == -1 {
		return -1
	}
	split := idx + len(paragraphBreak)

	head := text[:split]
	if strings.Count(head, fenceMarker)%2 != 0 {
		return -1
	}
	if strings.Count(head, mathMarker)%2 != 0 {
		return -1
	}
	return split
}
