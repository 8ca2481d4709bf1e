package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxTitleLength caps sanitized titles.
	MaxTitleLength = 100
	// TitlePlaceholder is used when nothing survives sanitization.
	TitlePlaceholder = "video"
)

func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// SanitizeTitle converts a title to a token made of [A-Za-z0-9_-]. Every run
// of other characters, separators included, collapses into one underscore; a
// lone hyphen between words is kept. The result is trimmed of separators,
// capped at MaxTitleLength and never empty.
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return TitlePlaceholder
	}
	if folded, _, err := transform.String(stripMarks(), title); err == nil {
		title = folded
	}

	var b strings.Builder
	b.Grow(len(title))
	var (
		runLen  int
		lastSep rune
	)
	for _, r := range title {
		if !isWordRune(r) {
			runLen++
			lastSep = r
			continue
		}
		if runLen > 0 && b.Len() > 0 {
			if runLen == 1 && lastSep == '-' {
				b.WriteByte('-')
			} else {
				b.WriteByte('_')
			}
		}
		runLen = 0
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), "_-")
	if utf8.RuneCountInString(out) > MaxTitleLength {
		out = strings.TrimRight(out[:MaxTitleLength], "_-")
	}
	if out == "" {
		return TitlePlaceholder
	}
	return out
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
