package utils

import (
	"fmt"
	"strings"
)

// DefaultCountryCode is prefixed to bare 10-digit Indian mobile numbers.
const DefaultCountryCode = "91"

// NormalizePhone canonicalizes a raw phone cell into a country-code-prefixed
// digit string. Rows whose number does not land in 10..15 digits after
// stripping symbols are rejected, never guessed at.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// Bare local numbers get the default country code; a leading trunk zero
	// ("09876...") is dropped first.
	if len(digits) == 11 && strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		digits = DefaultCountryCode + digits
	}

	if len(digits) < 10 || len(digits) > 15 {
		return "", fmt.Errorf("phone number %q has %d digits after normalization, want 10-15", raw, len(digits))
	}
	return digits, nil
}
