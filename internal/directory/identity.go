package directory

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a display name for comparison: lowercase,
// no diacritics, dashes as spaces, single spaces.
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeKey returns the comparison form of an identity key.
func NormalizeKey(kind IdentityKind, key string) string {
	if kind == IdentityName {
		return NormalizePersonName(key)
	}
	return strings.ToLower(strings.TrimSpace(key))
}

// SameIdentity reports whether two identity keys refer to the same person.
func SameIdentity(kind IdentityKind, a, b string) bool {
	na := NormalizeKey(kind, a)
	return na != "" && na == NormalizeKey(kind, b)
}
