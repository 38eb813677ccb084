// Package phone formats requester phone numbers for display.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Leads come from French intake forms; bare national numbers are read as FR.
const defaultRegion = "FR"

// National formats a phone number the way the provider console shows it
// ("06 12 34 56 78"). Unparseable or invalid input is returned trimmed.
func National(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.NATIONAL)
}
