package validate

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

// dialingCodes maps country codes to international dialing prefixes.
var dialingCodes = map[string]string{
	"AT": "43", "AU": "61", "BE": "32", "BG": "359", "BR": "55", "CA": "1",
	"CH": "41", "CN": "86", "CZ": "420", "DE": "49", "DK": "45", "ES": "34",
	"FI": "358", "FR": "33", "GB": "44", "GR": "30", "HR": "385", "HU": "36",
	"IE": "353", "IT": "39", "JP": "81", "KR": "82", "LU": "352", "NL": "31",
	"NO": "47", "PL": "48", "PT": "351", "RO": "40", "SE": "46", "SG": "65",
	"SI": "386", "SK": "421", "US": "1",
}

// trunkZero matches the "(0)" national trunk marker written inside
// international numbers, e.g. "+49 (0) 89 1234".
var trunkZero = regexp.MustCompile(`\(\s*0\s*\)`)

// NormalizePhone strips decoration from a phone number and converts it to
// international form where the country is known. The second result reports
// whether the number passes the digit-count heuristic.
func NormalizePhone(raw, country string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	international := strings.HasPrefix(s, "+") || strings.HasPrefix(s, "00")
	if international {
		s = trunkZero.ReplaceAllString(s, "")
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case strings.ContainsRune(" .-()/\t", r):
		default:
			// Letters or extensions: leave the value untouched.
			return raw, plausibleDigits(raw)
		}
	}
	cleaned := b.String()

	var out string
	switch {
	case strings.HasPrefix(cleaned, "+"):
		out = cleaned
	case strings.HasPrefix(cleaned, "00"):
		out = "+" + cleaned[2:]
	case strings.HasPrefix(cleaned, "0") && dialingCodes[country] != "":
		out = "+" + dialingCodes[country] + cleaned[1:]
	default:
		return raw, plausibleDigits(cleaned)
	}
	return out, plausibleDigits(out)
}

func plausibleDigits(s string) bool {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n >= 7 && n <= 15
}

// NormalizeWebsite ensures a URL carries an https scheme and a lower-case
// host. It returns false when the value cannot be parsed as a web address.
func NormalizeWebsite(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, " \t") {
		return raw, false
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "http://"):
		s = "https://" + s[len("http://"):]
	case strings.Contains(lower, "://"):
		return raw, false
	default:
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || !strings.Contains(u.Hostname(), ".") {
		return raw, false
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	return u.String(), true
}

// NormalizeEmail lower-cases an address and strips a display name.
func NormalizeEmail(raw string) (string, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return raw, false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 1 || !strings.Contains(addr.Address[at+1:], ".") {
		return raw, false
	}
	return strings.ToLower(addr.Address), true
}

// vatShape is the generic EU VAT shape: country prefix plus 2-13 characters.
var vatShape = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z+*]{2,13}$`)

// vatPatterns holds the national VAT formats for EU member states.
var vatPatterns = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^ATU\d{8}$`),
	"BE": regexp.MustCompile(`^BE[01]\d{9}$`),
	"BG": regexp.MustCompile(`^BG\d{9,10}$`),
	"CY": regexp.MustCompile(`^CY\d{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^CZ\d{8,10}$`),
	"DE": regexp.MustCompile(`^DE\d{9}$`),
	"DK": regexp.MustCompile(`^DK\d{8}$`),
	"EE": regexp.MustCompile(`^EE\d{9}$`),
	"EL": regexp.MustCompile(`^EL\d{9}$`),
	"ES": regexp.MustCompile(`^ES[A-Z0-9]\d{7}[A-Z0-9]$`),
	"FI": regexp.MustCompile(`^FI\d{8}$`),
	"FR": regexp.MustCompile(`^FR[A-HJ-NP-Z0-9]{2}\d{9}$`),
	"HR": regexp.MustCompile(`^HR\d{11}$`),
	"HU": regexp.MustCompile(`^HU\d{8}$`),
	"IE": regexp.MustCompile(`^IE\d[A-Z0-9+*]\d{5}[A-Z]{1,2}$`),
	"IT": regexp.MustCompile(`^IT\d{11}$`),
	"LT": regexp.MustCompile(`^LT(\d{9}|\d{12})$`),
	"LU": regexp.MustCompile(`^LU\d{8}$`),
	"LV": regexp.MustCompile(`^LV\d{11}$`),
	"MT": regexp.MustCompile(`^MT\d{8}$`),
	"NL": regexp.MustCompile(`^NL\d{9}B\d{2}$`),
	"PL": regexp.MustCompile(`^PL\d{10}$`),
	"PT": regexp.MustCompile(`^PT\d{9}$`),
	"RO": regexp.MustCompile(`^RO\d{2,10}$`),
	"SE": regexp.MustCompile(`^SE\d{12}$`),
	"SI": regexp.MustCompile(`^SI\d{8}$`),
	"SK": regexp.MustCompile(`^SK\d{10}$`),
	"XI": regexp.MustCompile(`^XI(\d{9}|\d{12}|GD\d{3}|HA\d{3})$`),
}

// vatLike matches registration ids that look like VAT ids: a two-letter
// country prefix followed by digits.
var vatLike = regexp.MustCompile(`^[A-Z]{2}U?\d{6,12}(B\d{2})?$`)

// NormalizeVAT upper-cases a VAT id and strips separators.
func NormalizeVAT(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '/', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(raw)))
}

// LooksLikeVAT reports whether v has a VAT-style country prefix and digits.
func LooksLikeVAT(v string) bool {
	return vatLike.MatchString(NormalizeVAT(v))
}

// SplitVAT splits a normalized VAT id into its prefix and number.
func SplitVAT(v string) (prefix, number string, ok bool) {
	n := NormalizeVAT(v)
	if !vatShape.MatchString(n) {
		return "", "", false
	}
	return n[:2], n[2:], true
}

// VATCountry converts a VAT prefix to an ISO country code.
func VATCountry(prefix string) string {
	switch prefix {
	case "EL":
		return "GR"
	case "XI":
		return "GB"
	}
	return prefix
}

func checkVATPattern(v string) (shapeOK, nationalOK bool) {
	if !vatShape.MatchString(v) {
		return false, false
	}
	re, ok := vatPatterns[v[:2]]
	if !ok {
		return true, true
	}
	return true, re.MatchString(v)
}
