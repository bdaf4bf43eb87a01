package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fold derives the lexical-matching form of a text: diacritics stripped,
// lower-cased, whitespace collapsed. The exact same function runs when a
// chunk's normalized content is computed at index-build time and when a
// query is normalized at search time; any divergence between the two breaks
// lexical recall, so both paths must go through here.
func Fold(text string) string {
	if text == "" {
		return ""
	}

	decomposed := norm.NFD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		// Vietnamese đ does not decompose into d + combining mark.
		switch r {
		case 'đ', 'ð':
			r = 'd'
		case 'Đ':
			r = 'D'
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
