package textutil

import (
	"strings"
	"unicode"
)

// WordCount returns the number of whitespace separated words containing at
// least one letter or digit.
func WordCount(text string) int {
	count := 0
	for _, field := range strings.Fields(text) {
		if strings.IndexFunc(field, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			count++
		}
	}
	return count
}
