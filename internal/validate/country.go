package validate

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/sells-group/datafixer/internal/textnorm"
)

// displayLanguages are the languages whose country names are accepted as
// input in addition to ISO codes.
var displayLanguages = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Dutch,
	language.Portuguese,
}

// isoCodes holds every ISO 3166-1 alpha-2 country code.
var isoCodes = map[string]bool{}

// countryNames maps a normalized country name or alpha-3 code to alpha-2.
var countryNames = map[string]string{}

// countryAliases covers colloquial names, reserved codes and frequent typos.
var countryAliases = map[string]string{
	"uk":                    "GB",
	"england":               "GB",
	"scotland":              "GB",
	"wales":                 "GB",
	"greatbritain":          "GB",
	"britain":               "GB",
	"el":                    "GR",
	"usa":                   "US",
	"america":               "US",
	"unitedstatesofamerica": "US",
	"holland":               "NL",
	"thenetherlands":        "NL",
	"netherland":            "NL",
	"swizerland":            "CH",
	"switzerlnd":            "CH",
	"switzerand":            "CH",
	"swiss":                 "CH",
	"germnay":               "DE",
	"grmany":                "DE",
	"germany":               "DE",
	"itlay":                 "IT",
	"luxemburg":             "LU",
	"austira":               "AT",
	"czechrepublic":         "CZ",
	"slovakrepublic":        "SK",
	"southkorea":            "KR",
	"korea":                 "KR",
	"russia":                "RU",
}

// confusableCodes lists valid ISO codes that are routinely typed instead of
// another country's code. The stated code is corrected when the city places
// the record in the intended country.
var confusableCodes = map[string][]string{
	"SZ": {"CH"}, // Eswatini for Switzerland
	"AU": {"AT"},
	"AT": {"AU"},
	"CN": {"CH"},
	"CH": {"CN"},
	"SL": {"SI"},
	"SI": {"SL"},
	"IR": {"IE"},
	"GE": {"DE"},
	"DK": {"DE"},
}

func init() {
	namers := make([]display.Namer, 0, len(displayLanguages))
	for _, tag := range displayLanguages {
		namers = append(namers, display.Regions(tag))
	}
	for a := 'A'; a <= 'Z'; a++ {
		for b := 'A'; b <= 'Z'; b++ {
			code := string([]rune{a, b})
			r, err := language.ParseRegion(code)
			if err != nil || r.String() != code || !r.IsCountry() {
				continue
			}
			isoCodes[code] = true
			if iso3 := r.ISO3(); iso3 != "" {
				addCountryName(iso3, code)
			}
			for _, n := range namers {
				if n == nil {
					continue
				}
				addCountryName(n.Name(r), code)
			}
		}
	}
	for alias, code := range countryAliases {
		countryNames[alias] = code
	}
}

func addCountryName(name, code string) {
	key := textnorm.Key(name)
	if key == "" {
		return
	}
	if _, exists := countryNames[key]; !exists {
		countryNames[key] = code
	}
}

// IsCountryCode reports whether code is an ISO 3166-1 alpha-2 code.
func IsCountryCode(code string) bool {
	return isoCodes[strings.ToUpper(strings.TrimSpace(code))]
}

// ResolveCountry maps a free-form country value to an alpha-2 code. The
// second result is false when nothing matched.
func ResolveCountry(v string) (string, bool) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", false
	}
	upper := strings.ToUpper(trimmed)
	if len(upper) == 2 && isoCodes[upper] {
		return upper, true
	}
	if code, ok := countryNames[textnorm.Key(trimmed)]; ok {
		return code, true
	}
	return "", false
}

// cityCountries is a small gazetteer of commercially relevant cities used to
// cross-check the stated country. Keys are normalized with textnorm.Key.
var cityCountries = map[string]string{
	"zurich": "CH", "geneva": "CH", "geneve": "CH", "genf": "CH", "basel": "CH",
	"bern": "CH", "lausanne": "CH", "lugano": "CH", "luzern": "CH", "lucerne": "CH",
	"zug": "CH", "winterthur": "CH", "stgallen": "CH",
	"wien": "AT", "vienna": "AT", "graz": "AT", "salzburg": "AT", "linz": "AT", "innsbruck": "AT",
	"sydney": "AU", "melbourne": "AU", "brisbane": "AU", "perth": "AU", "adelaide": "AU",
	"beijing": "CN", "shanghai": "CN", "shenzhen": "CN", "guangzhou": "CN",
	"berlin": "DE", "munchen": "DE", "munich": "DE", "hamburg": "DE", "koln": "DE",
	"cologne": "DE", "frankfurt": "DE", "frankfurtammain": "DE", "stuttgart": "DE",
	"dusseldorf": "DE", "leipzig": "DE", "dresden": "DE", "hannover": "DE", "nurnberg": "DE",
	"paris": "FR", "lyon": "FR", "marseille": "FR", "toulouse": "FR", "nice": "FR", "bordeaux": "FR",
	"london": "GB", "manchester": "GB", "birmingham": "GB", "edinburgh": "GB", "glasgow": "GB",
	"amsterdam": "NL", "rotterdam": "NL", "denhaag": "NL", "thehague": "NL", "utrecht": "NL", "eindhoven": "NL",
	"brussels": "BE", "bruxelles": "BE", "brussel": "BE", "antwerp": "BE", "antwerpen": "BE", "gent": "BE", "ghent": "BE",
	"madrid": "ES", "barcelona": "ES", "valencia": "ES", "sevilla": "ES", "seville": "ES", "bilbao": "ES",
	"rome": "IT", "roma": "IT", "milan": "IT", "milano": "IT", "turin": "IT", "torino": "IT", "naples": "IT", "napoli": "IT",
	"ljubljana": "SI", "maribor": "SI",
	"freetown": "SL",
	"dublin": "IE", "cork": "IE", "galway": "IE", "limerick": "IE",
	"tehran": "IR",
	"tbilisi": "GE",
	"mbabane": "SZ",
	"copenhagen": "DK", "kobenhavn": "DK", "aarhus": "DK", "odense": "DK",
	"stockholm": "SE", "gothenburg": "SE", "goteborg": "SE", "malmo": "SE", "uppsala": "SE",
	"oslo": "NO", "bergen": "NO", "trondheim": "NO",
	"helsinki": "FI", "espoo": "FI", "tampere": "FI",
	"warsaw": "PL", "warszawa": "PL", "krakow": "PL", "wroclaw": "PL", "gdansk": "PL",
	"prague": "CZ", "praha": "CZ", "brno": "CZ",
	"bratislava": "SK", "kosice": "SK",
	"lisbon": "PT", "lisboa": "PT", "porto": "PT",
	"athens": "GR", "athina": "GR", "thessaloniki": "GR",
	"budapest": "HU", "bucharest": "RO", "bucuresti": "RO", "sofia": "BG", "zagreb": "HR",
	"luxembourg": "LU", "luxemburg": "LU",
	"newyork": "US", "losangeles": "US", "chicago": "US", "sanfrancisco": "US", "boston": "US", "seattle": "US",
	"toronto": "CA", "montreal": "CA", "vancouver": "CA", "ottawa": "CA",
	"tokyo": "JP", "osaka": "JP", "seoul": "KR", "singapore": "SG",
}

// CityCountry returns the country a well-known city belongs to.
func CityCountry(city string) (string, bool) {
	code, ok := cityCountries[textnorm.Key(city)]
	return code, ok
}

func isConfusable(stated, intended string) bool {
	for _, c := range confusableCodes[stated] {
		if c == intended {
			return true
		}
	}
	return false
}
