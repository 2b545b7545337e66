package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextSize bounds a single rendered field.
const MaxTextSize = 512

// Sanitize prepares remote text (process messages, API substatus messages,
// tool names) for a terminal. Control characters other than tab are
// stripped, invalid UTF-8 is replaced and the result is truncated to
// MaxTextSize bytes on a rune boundary. This prevents terminal corruption
// through ANSI sequences embedded in stored routes.
func Sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}

	// Fast path: if no control chars, only the size limit applies.
	clean := true
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' {
			clean = false
			break
		}
	}
	if !clean {
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			if !unicode.IsControl(r) || r == '\t' {
				b.WriteRune(r)
			}
		}
		s = b.String()
	}

	if len(s) <= MaxTextSize {
		return s
	}
	cut := MaxTextSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
