package directory

import "strings"

// ParseBlocked coerces the stored blocked flag. Spreadsheet rows written by
// different tools use TRUE, true, yes, y or 1; anything else is not blocked.
func ParseBlocked(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	default:
		return false
	}
}

// FormatBlocked renders the flag in the spreadsheet's canonical form.
func FormatBlocked(blocked bool) string {
	if blocked {
		return "TRUE"
	}
	return "FALSE"
}
