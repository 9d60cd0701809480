package utils

import (
	"strings"
)

// PhoneNormalizer turns free-form phone input into the canonical key used for
// both deduplication and the outbound address.
type PhoneNormalizer struct {
	CountryCode  string
	MobilePrefix string
	TrunkPrefix  string
}

// Key returns the canonical phone key for raw, or "" when raw holds no usable
// digits. Key is idempotent.
func (p PhoneNormalizer) Key(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	digits = strings.TrimLeft(digits, "0")
	if p.TrunkPrefix != "" && strings.HasPrefix(digits, p.TrunkPrefix) {
		digits = digits[len(p.TrunkPrefix):]
	}
	if digits == "" {
		return ""
	}

	marker := p.CountryCode + p.MobilePrefix
	switch {
	case strings.HasPrefix(digits, marker):
	case strings.HasPrefix(digits, p.CountryCode):
		digits = marker + digits[len(p.CountryCode):]
	default:
		digits = marker + digits
	}
	return digits
}
