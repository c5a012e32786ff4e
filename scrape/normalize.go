package scrape

import (
	"regexp"
	"strings"
)

// noise matches every character that is not a word character, whitespace,
// or one of . , ! ? -
var noise = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s\p{Z}.,!?-]`)

// Normalize removes noise characters and trims surrounding whitespace.
func Normalize(text string) string {
	return strings.TrimSpace(noise.ReplaceAllString(text, ""))
}
