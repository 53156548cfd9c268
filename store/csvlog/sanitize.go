package csvlog

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sanitize drops invalid UTF-8, maps the stray Windows-1252 quote U+0092 to an
// apostrophe and returns the NFC form.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\u0092", "'")
	return norm.NFC.String(s)
}
