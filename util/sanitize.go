package util

import "strings"

// SanitizeForLog flattens user-provided strings (hostnames, usernames,
// command lines) before they are logged, so they cannot forge extra log
// lines or smuggle terminal escapes.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x20 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}
