package views

import (
	"strings"
	"unicode/utf8"
)

// sanitize drops codepoints tcell cannot lay out as one cell run: skin tone
// modifiers, the zero width joiner and variation selectors. A joined emoji
// sequence degrades to its base characters.
func sanitize(s string) string {
	clean := true
	for _, r := range s {
		if dropRune(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !dropRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func dropRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D: // ZWJ
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// oneLine collapses a multi-line body for single-row cells.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
