package services

import (
	"fmt"
	"time"
)

// AuthenticationError indicates the caller could not be identified or does
// not own the resource they addressed. Handlers map it to a bare 401.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// RateLimitExceededError is returned when a user has used up their
// generation allowance for the current window.
type RateLimitExceededError struct {
	UserID string
	Limit  int
	Reset  time.Time
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit of %d generations exceeded for user %s", e.Limit, e.UserID)
}

// UserMessage is the text surfaced to the pupil-facing client. The reset is
// deliberately rounded up to a whole number of hours.
func (e *RateLimitExceededError) UserMessage() string {
	hours := int(time.Until(e.Reset).Hours()) + 1
	if hours < 1 {
		hours = 1
	}
	unit := "hours"
	if hours == 1 {
		unit = "hour"
	}
	return fmt.Sprintf("You have created a lot of lessons today, so we need to check that our service is being used fairly. Please come back in %d %s to continue.", hours, unit)
}
