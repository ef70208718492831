package pages

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9_.]+`)

// Slugify turns a display title into a page name: lowercase ASCII letters,
// digits, '_', '.' and single dashes, at most MaxNameLength bytes.
// Returns "" when nothing usable remains.
func Slugify(title string) string {
	s := stripDiacritics(strings.ToLower(strings.TrimSpace(title)))
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-._")
	if len(s) > MaxNameLength {
		s = strings.TrimRight(s[:MaxNameLength], "-._")
	}
	return s
}

// stripDiacritics decomposes s (NFD) and drops the combining marks.
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
