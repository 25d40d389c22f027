package validate

import (
	"regexp"
	"sort"
	"strings"
)

// postalPatterns maps a country code to the shape of its postal codes.
var postalPatterns = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^\d{4}$`),
	"AU": regexp.MustCompile(`^\d{4}$`),
	"BE": regexp.MustCompile(`^\d{4}$`),
	"BR": regexp.MustCompile(`^\d{5}-?\d{3}$`),
	"CA": regexp.MustCompile(`^[A-Z]\d[A-Z] ?\d[A-Z]\d$`),
	"CH": regexp.MustCompile(`^\d{4}$`),
	"CZ": regexp.MustCompile(`^\d{3} ?\d{2}$`),
	"DE": regexp.MustCompile(`^\d{5}$`),
	"DK": regexp.MustCompile(`^\d{4}$`),
	"ES": regexp.MustCompile(`^\d{5}$`),
	"FI": regexp.MustCompile(`^\d{5}$`),
	"FR": regexp.MustCompile(`^\d{5}$`),
	"GB": regexp.MustCompile(`^[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}$`),
	"GR": regexp.MustCompile(`^\d{3} ?\d{2}$`),
	"HU": regexp.MustCompile(`^\d{4}$`),
	"IE": regexp.MustCompile(`^[A-Z]\d[\dW] ?[A-Z\d]{4}$`),
	"IT": regexp.MustCompile(`^\d{5}$`),
	"JP": regexp.MustCompile(`^\d{3}-?\d{4}$`),
	"LU": regexp.MustCompile(`^\d{4}$`),
	"NL": regexp.MustCompile(`^\d{4} ?[A-Z]{2}$`),
	"NO": regexp.MustCompile(`^\d{4}$`),
	"PL": regexp.MustCompile(`^\d{2}-\d{3}$`),
	"PT": regexp.MustCompile(`^\d{4}-\d{3}$`),
	"SE": regexp.MustCompile(`^\d{3} ?\d{2}$`),
	"SI": regexp.MustCompile(`^\d{4}$`),
	"SK": regexp.MustCompile(`^\d{3} ?\d{2}$`),
	"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
}

// postalNeighbours orders the alternates to suggest when a postal code fits
// several other countries. The first listed country that matches wins.
var postalNeighbours = map[string][]string{
	"DE": {"AT", "CH", "NL", "PL", "DK", "BE", "LU", "CZ"},
	"AT": {"DE", "CH", "SI", "HU", "CZ", "SK"},
	"CH": {"DE", "AT", "FR", "IT", "LU"},
	"SZ": {"CH", "AT"},
	"NL": {"BE", "DE"},
	"BE": {"NL", "LU", "FR", "DE"},
	"FR": {"BE", "CH", "LU", "DE", "ES", "IT"},
	"LU": {"BE", "DE", "FR"},
	"GB": {"IE"},
	"IE": {"GB"},
	"CA": {"US"},
	"US": {"CA"},
	"AU": {"AT"},
}

// postalPrefix strips a leading country prefix such as "D-" or "CH-".
var postalPrefix = regexp.MustCompile(`^[A-Z]{1,2}-`)

// normalizePostal upper-cases a postal code and removes a country prefix.
func normalizePostal(v string) string {
	s := strings.ToUpper(strings.TrimSpace(v))
	return postalPrefix.ReplaceAllString(s, "")
}

// PostalMatches returns the countries whose postal pattern fits v, sorted.
func PostalMatches(v string) []string {
	s := normalizePostal(v)
	var out []string
	for code, re := range postalPatterns {
		if re.MatchString(s) {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

// PostalFits reports whether v fits the postal pattern of country. Countries
// without a known pattern always fit.
func PostalFits(country, v string) bool {
	re, ok := postalPatterns[country]
	if !ok {
		return true
	}
	return re.MatchString(normalizePostal(v))
}

// suggestPostalCountry picks the alternate country for a postal code that does
// not fit the stated one. cityHint is used first when it is among the matches.
func suggestPostalCountry(stated, cityHint string, matches []string) (string, bool) {
	if len(matches) == 0 {
		return "", false
	}
	in := func(code string) bool {
		for _, m := range matches {
			if m == code {
				return true
			}
		}
		return false
	}
	if cityHint != "" && in(cityHint) {
		return cityHint, true
	}
	for _, n := range postalNeighbours[stated] {
		if in(n) {
			return n, true
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}
