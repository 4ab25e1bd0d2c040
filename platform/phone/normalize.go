// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "IN"

const countryPrefix = "91"

// Normalize converts arbitrary phone text into the canonical digit string used
// for identity lookups. All non-digit characters are stripped and leading trunk
// zeros dropped. Remaining inputs longer than ten digits are assumed to already
// carry a country code and are returned as-is; everything else gets the "91"
// prefix. Inputs shorter than ten digits still get the prefix, which can
// produce a plausible-looking but invalid number; callers that care should
// check LooksValid and log, never reject.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" {
		return ""
	}
	if len(digits) > 10 {
		return digits
	}
	return countryPrefix + digits
}

// LooksValid reports whether a canonical number parses as a valid phone number.
// Used only for diagnostics on suspiciously short inputs.
func LooksValid(canonical string) bool {
	if canonical == "" {
		return false
	}

	number, err := phonenumbers.Parse("+"+canonical, defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(number)
}
