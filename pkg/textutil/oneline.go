// Package textutil formats free text for single-line output such as table
// cells and XML attributes.
package textutil

import (
	"strings"
)

// MinLen is the smallest limit accepted by OneLine. Smaller limits are
// raised to it so at least one rune fits before the ellipsis.
const MinLen = 4

// OneLine collapses every run of whitespace, newlines included, into a
// single space and cuts the result to maxLen runes, ending in "..." when
// something was cut. A maxLen of zero or less disables the cut.
func OneLine(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxLen <= 0 {
		return s
	}
	if maxLen < MinLen {
		maxLen = MinLen
	}

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
