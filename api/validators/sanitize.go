package validators

import "strings"

// SanitizeString collapses whitespace and truncates to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	collapsed := strings.Join(strings.Fields(input), " ")
	if maxLen > 0 {
		if runes := []rune(collapsed); len(runes) > maxLen {
			return string(runes[:maxLen])
		}
	}
	return collapsed
}
