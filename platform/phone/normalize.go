// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	defaultRegion      = "BR"
	countryCallingCode = "55"

	// Brazilian mobile numbers are 11 digits: 2-digit area code plus a
	// 9-digit subscriber number starting with the mobile indicator.
	mobileLength       = 11
	legacyMobileLength = 10
	areaCodeLength     = 2
	mobileIndicator    = "9"
)

// NormalizeMobile canonicalizes a human-entered phone string into E.164.
//
// Numbers written in the pre-2012 10-digit format (area code plus 8-digit
// subscriber) get the mobile indicator digit inserted after the area code, so
// the legacy and modern spellings of the same number converge on one
// canonical string. Anything that does not land on the canonical mobile
// length is rejected rather than guessed: a false ("unusable") result means
// the identifier contributes nothing to matching, it is not an error.
func NormalizeMobile(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	// Numbers already in international format for another country are taken
	// as-is when the library validates them.
	if strings.HasPrefix(trimmed, "+") && !strings.HasPrefix(digitsOf(trimmed), countryCallingCode) {
		number, err := phonenumbers.Parse(trimmed, "")
		if err != nil || !phonenumbers.IsValidNumber(number) {
			return "", false
		}
		return phonenumbers.Format(number, phonenumbers.E164), true
	}

	digits := digitsOf(trimmed)
	if digits == "" {
		return "", false
	}

	// Strip the country calling code only when enough digits remain for a
	// national number; "55" is also a valid area code.
	if strings.HasPrefix(digits, countryCallingCode) && len(digits) >= mobileLength+len(countryCallingCode)-1 {
		digits = digits[len(countryCallingCode):]
	}

	if len(digits) == legacyMobileLength {
		digits = digits[:areaCodeLength] + mobileIndicator + digits[areaCodeLength:]
	}

	if len(digits) != mobileLength {
		return "", false
	}

	e164 := "+" + countryCallingCode + digits

	// Length sanity check against the numbering plan metadata.
	number, err := phonenumbers.Parse(e164, defaultRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(number) {
		return "", false
	}

	return e164, true
}

// NormalizeEmail lower-cases and trims an email address. Case folding is
// lossless, so there is no rejection path.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
