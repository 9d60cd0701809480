package whatsapp

import (
	"errors"
	"strings"
)

var (
	// ErrNotReady means the tenant's session cannot send right now. Callers
	// treat it as a signal to retry later, not as a failed send.
	ErrNotReady        = errors.New("whatsapp: session not ready")
	ErrSessionNotFound = errors.New("whatsapp: session not found")
	ErrRateLimited     = errors.New("whatsapp: rate limited")
	// ErrRelinkRequired means the session was stopped for good and only an
	// operator action brings it back.
	ErrRelinkRequired = errors.New("whatsapp: session needs to be relinked")
)

var rateLimitMarkers = []string{"429", "rate-overlimit", "rate limit", "rate-limit", "too many"}

// IsRateLimited reports whether err is a provider rate limit, either already
// classified or recognised from the provider's error text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
