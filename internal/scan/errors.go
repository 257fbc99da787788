package scan

import (
	"fmt"
	"strings"
)

// InsufficientProfileDataError means the profile lacks fields the
// broker's search template requires. The broker is skipped, not failed.
type InsufficientProfileDataError struct {
	Missing []string
}

func (e *InsufficientProfileDataError) Error() string {
	return fmt.Sprintf("profile missing required fields: %s", strings.Join(e.Missing, ", "))
}

// CaptchaError means the broker served a challenge page instead of
// results.
type CaptchaError struct {
	BrokerID string
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("broker %s presented a CAPTCHA challenge", e.BrokerID)
}

// SelectorsOutdatedError means one of the broker's configured result
// selectors no longer compiles. The definition needs maintenance.
type SelectorsOutdatedError struct {
	BrokerID string
	Selector string
}

func (e *SelectorsOutdatedError) Error() string {
	return fmt.Sprintf("broker %s selectors outdated: %q does not compile", e.BrokerID, e.Selector)
}
