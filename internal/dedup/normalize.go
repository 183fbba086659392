package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Normalize turns request text into a dedup key: Unicode case folded,
// punctuation and symbols removed, runs of whitespace collapsed to one space.
func Normalize(text string) string {
	folded := cases.Fold().String(text)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
