package mpesa

import (
	"errors"
	"strings"
)

const (
	countryCode     = "254"
	msisdnLength    = 12
	localNumberSize = 9
)

// ErrInvalidPhone is returned when a number cannot be mapped to a 2547XXXXXXXX msisdn.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone converts local and international Kenyan formats into the
// twelve digit msisdn the gateway expects (no plus sign).
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, countryCode):
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	case len(digits) == localNumberSize:
		digits = countryCode + digits
	}

	if len(digits) != msisdnLength {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
