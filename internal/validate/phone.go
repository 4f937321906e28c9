package validate

import (
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultCountry is the phone region used when a session has not picked one.
const DefaultCountry = "ZA"

// Region is one selectable phone country.
type Region struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	CallingCode int    `json:"calling_code"`
}

func regionOrDefault(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return DefaultCountry
	}
	return country
}

// IsPhone reports whether value parses under country to a number that is
// valid per the numbering plan.
func IsPhone(value, country string) bool {
	num, err := phonenumbers.Parse(value, regionOrDefault(country))
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

// CanonicalPhone renders value in international display form and E.164.
// ok is false when the value does not parse; display is then value unchanged.
// Canonicalising an already canonical display value returns it unchanged.
func CanonicalPhone(value, country string) (displayForm, e164 string, ok bool) {
	num, err := phonenumbers.Parse(strings.TrimSpace(value), regionOrDefault(country))
	if err != nil {
		return value, "", false
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL), phonenumbers.Format(num, phonenumbers.E164), true
}

// IsRegion reports whether code is a region the numbering plan knows.
func IsRegion(code string) bool {
	return phonenumbers.GetSupportedRegions()[strings.ToUpper(code)]
}

// Regions lists every supported phone region sorted by display name.
func Regions() []Region {
	namer := display.English.Regions()
	supported := phonenumbers.GetSupportedRegions()
	out := make([]Region, 0, len(supported))
	for code := range supported {
		name := code
		if r, err := language.ParseRegion(code); err == nil {
			if n := namer.Name(r); n != "" {
				name = n
			}
		}
		out = append(out, Region{
			Code:        code,
			Name:        name,
			CallingCode: phonenumbers.GetCountryCodeForRegion(code),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
