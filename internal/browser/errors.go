package browser

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when a navigation would violate the
// per-domain pacing policy. Callers reschedule; nothing is queued.
var ErrRateLimited = errors.New("domain rate limit exceeded")

// SelectorNotFoundError reports a selector that never appeared on the
// page within the wait deadline.
type SelectorNotFoundError struct {
	Selector string
}

func (e *SelectorNotFoundError) Error() string {
	return fmt.Sprintf("selector not found: %s", e.Selector)
}

// NavigationError wraps a failed page load. Timeout distinguishes slow
// sites from hard network failures.
type NavigationError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *NavigationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("navigation timed out: %s", e.URL)
	}
	return fmt.Sprintf("navigation failed: %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// HTTPStatusError reports a page that loaded with a non-success status.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("site returned HTTP %d: %s", e.Status, e.URL)
}
