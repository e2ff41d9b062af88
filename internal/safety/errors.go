// Package safety gates generation: input threat detection, output
// moderation against the Oak content guidelines, and violation recording
// with ban escalation.
package safety

import "fmt"

// UserBannedError is returned, never panicked, when recording a violation
// tips a user over the allowed threshold. Callers surface it to the
// transport as an account-locked action.
type UserBannedError struct {
	UserID string
}

func (e *UserBannedError) Error() string {
	return fmt.Sprintf("user %s is banned", e.UserID)
}

// ThreatDetectionError reports that a user message was flagged as a
// prompt injection or jailbreak attempt before any generation ran.
type ThreatDetectionError struct {
	UserID string
	ChatID string
}

func (e *ThreatDetectionError) Error() string {
	return fmt.Sprintf("threat detected in chat %s for user %s", e.ChatID, e.UserID)
}
