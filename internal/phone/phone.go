// Package phone canonicalizes phone numbers to a single dialable form.
// Every identity comparison between a stored number and a webhook sender
// goes through Normalize, because provider-formatted numbers and stored
// numbers differ in formatting.
package phone

import "strings"

// CountryCode is the dialing prefix applied to national numbers.
const CountryCode = "972"

// Normalize strips non-digits and applies the country prefix rule:
// a leading national '0' is replaced by the country code, otherwise the
// country code is prefixed when absent. Idempotent.
func Normalize(raw string) string {
	digits := sanitize(raw)
	if digits == "" {
		return CountryCode
	}
	if strings.HasPrefix(digits, "0") {
		return CountryCode + digits[1:]
	}
	if strings.HasPrefix(digits, CountryCode) {
		return digits
	}
	return CountryCode + digits
}

// Equal reports whether two phone strings identify the same number.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// ChatID formats a phone number as a WhatsApp chat identifier.
func ChatID(raw string) string {
	return Normalize(raw) + "@c.us"
}

// FromChatID strips the WhatsApp chat suffix and normalizes the remainder.
func FromChatID(chatID string) string {
	return Normalize(strings.TrimSuffix(chatID, "@c.us"))
}

func sanitize(value string) string {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}
