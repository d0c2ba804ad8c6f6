package render

import "strings"

// Collapse returns the collapsed form of a truncatable paragraph: the first
// TruncateThreshold characters followed by an ellipsis. Short text is
// returned unchanged with truncated == false.
func Collapse(text string) (preview string, truncated bool) {
	runes := []rune(text)
	if len(runes) <= TruncateThreshold {
		return text, false
	}
	return strings.TrimRight(string(runes[:TruncateThreshold]), " ") + "…", true
}
