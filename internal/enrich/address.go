package enrich

import (
	"regexp"
	"strings"
)

// Address is a registry address split into canonical parts.
type Address struct {
	Line1      string
	PostalCode string
	City       string
}

type localityPattern struct {
	re         *regexp.Regexp
	postalIdx  int
	cityIdx    int
	countries  map[string]bool // nil matches any country
	postalOnly bool
}

func countries(cc ...string) map[string]bool {
	m := make(map[string]bool, len(cc))
	for _, c := range cc {
		m[c] = true
	}
	return m
}

// localityPatterns are tried in order against the last address line.
var localityPatterns = []localityPattern{
	// 1012 AB Amsterdam
	{re: regexp.MustCompile(`(?i)^(\d{4}\s?[A-Z]{2})\s+(.+)$`), postalIdx: 1, cityIdx: 2, countries: countries("NL")},
	// 00-950 Warszawa, 1000-001 Lisboa
	{re: regexp.MustCompile(`(?i)^(\d{2}-\d{3}|\d{4}-\d{3})\s+(.+)$`), postalIdx: 1, cityIdx: 2, countries: countries("PL", "PT")},
	// London EC1A 1BB
	{re: regexp.MustCompile(`(?i)^(.+?)\s+([A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2})$`), postalIdx: 2, cityIdx: 1, countries: countries("GB", "XI", "IE")},
	// EC1A 1BB on its own line
	{re: regexp.MustCompile(`(?i)^([A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2})$`), postalIdx: 1, countries: countries("GB", "XI"), postalOnly: true},
	// Toronto ON M5V 2T6
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(?:[A-Z]{2}\s+)?([A-Z]\d[A-Z]\s?\d[A-Z]\d)$`), postalIdx: 2, cityIdx: 1, countries: countries("CA")},
	// 12345 Berlin, D-12345 Berlin
	{re: regexp.MustCompile(`(?i)^(?:[A-Z]{1,2}-)?(\d{4,5})\s+(.+)$`), postalIdx: 1, cityIdx: 2},
	// Athens 105 57, Madrid 28001
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(\d{3}\s?\d{2}|\d{4,5})$`), postalIdx: 2, cityIdx: 1},
}

// ParseAddress splits a registry address into street, postal code and city.
// Lines are separated by newlines or, for single-line values, commas. The
// last line is read as the locality using patterns for the given country
// (ISO alpha-2); remaining lines form the street line.
func ParseAddress(raw, country string) Address {
	lines := splitAddressLines(raw)
	if len(lines) == 0 {
		return Address{}
	}
	country = strings.ToUpper(strings.TrimSpace(country))

	last := lines[len(lines)-1]
	rest := lines[:len(lines)-1]

	for _, p := range localityPatterns {
		if p.countries != nil && !p.countries[country] {
			continue
		}
		m := p.re.FindStringSubmatch(last)
		if m == nil {
			continue
		}
		a := Address{PostalCode: strings.ToUpper(strings.TrimSpace(m[p.postalIdx]))}
		if p.postalOnly {
			if len(rest) > 0 {
				a.City = rest[len(rest)-1]
				rest = rest[:len(rest)-1]
			}
		} else {
			a.City = strings.TrimSpace(m[p.cityIdx])
		}
		a.Line1 = strings.Join(rest, ", ")
		return a
	}

	// No recognizable locality: keep everything as the street line.
	return Address{Line1: strings.Join(lines, ", ")}
}

func splitAddressLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r", "")
	parts := strings.Split(raw, "\n")
	if len(nonBlank(parts)) <= 1 {
		parts = strings.Split(raw, ",")
	}
	return nonBlank(parts)
}

func nonBlank(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}
