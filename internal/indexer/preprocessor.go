package indexer

import (
	"strings"
	"unicode"
)

// Preprocess cleans a title or description before it is stored and embedded.
// Control and format characters are dropped and whitespace runs become one space.
func Preprocess(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), r == unicode.ReplacementChar:
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}
