package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// AbbrevRules handles street abbreviation expansion
type AbbrevRules struct {
	rules map[string]string
}

// NewAbbrevRules creates the default Finnish and Swedish street rules.
func NewAbbrevRules() *AbbrevRules {
	return &AbbrevRules{rules: map[string]string{
		"K":  "KATU",
		"T":  "TIE",
		"P":  "POLKU",
		"KJ": "KUJA",
		"PK": "PUISTOKATU",
		"TR": "TORI",
		"GT": "GATAN",
		"VG": "VÄGEN",
	}}
}

// Expand replaces whole abbreviated words in upper-case text
func (ar *AbbrevRules) Expand(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		if full, ok := ar.rules[f]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}

var defaultRules = NewAbbrevRules()

// Finnish postal codes are five digits.
var rePostalCode = regexp.MustCompile(`\b(\d{5})\b`)

// CanonicalStreet upper-cases a street name, replaces punctuation with
// spaces, collapses whitespace and expands abbreviations. Hyphens inside
// names are kept ("ALA-MALMIN TORI").
func CanonicalStreet(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	b := strings.Builder{}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return defaultRules.Expand(b.String())
}

// CanonicalHouseNumber upper-cases a house number and removes the spaces
// and punctuation between its parts, so "12 a" and "12A" compare equal.
// Ranges keep their hyphen ("3-5").
func CanonicalHouseNumber(raw string) string {
	b := strings.Builder{}
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalPostalCode extracts the five-digit postal code from raw, or
// returns the trimmed input when none is found.
func CanonicalPostalCode(raw string) string {
	if m := rePostalCode.FindString(raw); m != "" {
		return m
	}
	return strings.TrimSpace(raw)
}

// SplitStreetAddress separates "Kuusitie 12 A" into street and house number.
// The house number starts at the first token beginning with a digit.
func SplitStreetAddress(raw string) (street, number string) {
	fields := strings.Fields(raw)
	for i, f := range fields {
		if f != "" && unicode.IsDigit([]rune(f)[0]) {
			return strings.Join(fields[:i], " "), strings.Join(fields[i:], " ")
		}
	}
	return strings.Join(fields, " "), ""
}
