package phone

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultCountryCode is applied to national-format numbers (07xx…, 01xx…).
const DefaultCountryCode = "254"

// Normalize converts a mobile number into E.164-like form (+254712345678).
// Accepted inputs: +2547…, 2547…, 07…, 7… and the 01…/1… ranges, with
// spaces, dashes and parentheses tolerated. Anything else is rejected.
func Normalize(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r):
			return r
		case r == '+':
			return r
		case r == ' ' || r == '-' || r == '(' || r == ')':
			return -1
		default:
			return 'x'
		}
	}, strings.TrimSpace(raw))

	if cleaned == "" || strings.ContainsRune(cleaned, 'x') {
		return "", fmt.Errorf("phone number %q contains invalid characters", raw)
	}
	if strings.LastIndex(cleaned, "+") > 0 {
		return "", fmt.Errorf("phone number %q is malformed", raw)
	}

	digits := strings.TrimPrefix(cleaned, "+")
	switch {
	case strings.HasPrefix(digits, DefaultCountryCode):
		// already international
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = DefaultCountryCode + digits[1:]
	case (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")) && len(digits) == 9:
		digits = DefaultCountryCode + digits
	default:
		return "", fmt.Errorf("phone number %q is not a recognized mobile format", raw)
	}

	if len(digits) != len(DefaultCountryCode)+9 {
		return "", fmt.Errorf("phone number %q has wrong length", raw)
	}
	subscriber := digits[len(DefaultCountryCode):]
	if subscriber[0] != '7' && subscriber[0] != '1' {
		return "", fmt.Errorf("phone number %q is not a mobile number", raw)
	}

	return "+" + digits, nil
}

// IsValid reports whether raw normalizes to a valid mobile number.
func IsValid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}
