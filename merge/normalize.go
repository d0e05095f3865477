package merge

import "strings"

// NormalizeName canonicalizes an entity name for deduplication: whitespace
// (including non-breaking spaces) is removed and half-width parentheses are
// folded to the full-width forms used in the source texts.
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "(", "（")
	s = strings.ReplaceAll(s, ")", "）")
	return s
}
