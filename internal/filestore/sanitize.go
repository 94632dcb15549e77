package filestore

import (
	"strings"
	"unicode"
)

// SanitizeName strips control characters and replaces anything outside a
// conservative set with '_'. maxLen counts runes; 0 disables truncation.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := b.String()
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}

func validDraftID(id string) bool {
	if id == "" || id == "." || strings.Contains(id, "..") {
		return false
	}
	return SanitizeName(id, 128) == id
}
