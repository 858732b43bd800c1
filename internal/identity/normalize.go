package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases, trims and strips diacritics so "Vásquez " and "vasquez" compare equal.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// RootToken returns the part of an identity before '@' with a trailing plural "s" removed,
// so "sistemas@rapilink-sas" and "sistema@rapilink" share the root "sistema".
func RootToken(s string) string {
	n := Normalize(s)
	if i := strings.Index(n, "@"); i >= 0 {
		n = n[:i]
	}
	if len(n) > 1 {
		n = strings.TrimSuffix(n, "s")
	}
	return n
}

// IsUnassigned reports whether an upstream technician value literally means "nobody",
// which is distinct from a value that fails to match.
func IsUnassigned(s string) bool {
	switch Normalize(s) {
	case "", "sin asignar", "sin tecnico", "unassigned", "ninguno", "none", "null":
		return true
	}
	return false
}
