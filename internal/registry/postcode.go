package registry

import (
	"strings"
	"unicode"
)

// NormalizePostcode removes all whitespace, uppercases, and puts a single space
// before the inward code (the final three characters) when there is an outward part.
func NormalizePostcode(raw string) string {
	pc := strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw))

	if len(pc) > 3 {
		pc = pc[:len(pc)-3] + " " + pc[len(pc)-3:]
	}
	return pc
}
