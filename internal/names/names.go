// Package names matches party names the way they appear in registers and
// customer systems: word order varies, honorifics and legal forms are
// dropped or truncated, and joint holders are written as "A & B".
package names

import (
	"regexp"
	"strings"
	"unicode"
)

// reSeparator splits joint names on coordinating separators.
var reSeparator = regexp.MustCompile(`(?i)\s*[&+/]\s*|\s+(?:and|ja|och)\s+`)

// legalForms are dropped before matching organisation names.
var legalForms = map[string]bool{
	"oy":    true,
	"oyj":   true,
	"ab":    true,
	"abp":   true,
	"ky":    true,
	"ay":    true,
	"ry":    true,
	"tmi":   true,
	"koy":   true,
	"ltd":   true,
	"inc":   true,
	"llc":   true,
	"gmbh":  true,
	"as.oy": true,
	"asoy":  true,
}

// legalPrefixes only count as part of a legal form when followed by "oy".
var legalPrefixes = map[string]bool{
	"as":         true,
	"asunto":     true,
	"kiinteistö": true,
}

// organisationWords mark a name as an organisation even without a legal form.
var organisationWords = map[string]bool{
	"osakeyhtiö":        true,
	"asunto-osakeyhtiö": true,
	"kunta":             true,
	"kaupunki":          true,
	"seurakunta":        true,
	"yhtymä":            true,
	"kuntayhtymä":       true,
	"säätiö":            true,
	"yhdistys":          true,
	"kuolinpesä":        true,
}

// Split breaks a joint name into its parts. A name without separators is
// returned as a single part; empty parts are dropped.
func Split(name string) []string {
	var parts []string
	for _, p := range reSeparator.Split(name, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Match reports whether two names refer to the same party. When either side
// is a joint name, any pair of parts matching is enough. Single names match
// when the words of one are a subset of the words of the other, ignoring
// case and order. Empty names never match.
func Match(a, b string) bool {
	pa, pb := Split(a), Split(b)
	if len(pa) == 0 || len(pb) == 0 {
		return false
	}
	if len(pa) == 1 && len(pb) == 1 {
		return wordsMatch(pa[0], pb[0])
	}
	for _, x := range pa {
		for _, y := range pb {
			if Match(x, y) {
				return true
			}
		}
	}
	return false
}

func wordsMatch(a, b string) bool {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	return subset(wa, wb) || subset(wb, wa)
}

func subset(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; !ok {
			return false
		}
	}
	return true
}

func wordSet(name string) map[string]struct{} {
	words := Words(name)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Words returns the lowercase whitespace-separated words of name with
// surrounding punctuation trimmed.
func Words(name string) []string {
	var words []string
	for _, f := range strings.Fields(strings.ToLower(name)) {
		if w := trimPunct(f); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// StripLegalSuffix removes legal-form words ("Oy", "Ab", "As Oy", ...) from
// a name. If nothing else remains, the name is returned unchanged.
func StripLegalSuffix(name string) string {
	fields := strings.Fields(name)
	kept := make([]string, 0, len(fields))
	for i, f := range fields {
		w := strings.ToLower(trimPunct(f))
		if legalForms[w] {
			continue
		}
		if legalPrefixes[w] && i+1 < len(fields) && strings.ToLower(trimPunct(fields[i+1])) == "oy" {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		return strings.TrimSpace(name)
	}
	return strings.Join(kept, " ")
}

// IsOrganization reports whether the name carries a legal form or an
// organisational keyword.
func IsOrganization(name string) bool {
	for _, w := range Words(name) {
		if legalForms[w] || organisationWords[w] {
			return true
		}
	}
	return false
}
