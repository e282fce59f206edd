package rooms

import (
	"regexp"
	"strings"
)

var slugInvalid = regexp.MustCompile(`[^a-z-]+`)

// SanitizeSlug lowercases s and turns every run of characters outside [a-z-] into a dash.
func SanitizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return slugInvalid.ReplaceAllString(s, "-")
}
