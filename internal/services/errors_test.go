package services

import (
	"strings"
	"testing"
	"time"
)

func TestRateLimitUserMessageRoundsUpToWholeHours(t *testing.T) {
	tests := []struct {
		name  string
		reset time.Time
		want  string
	}{
		{"under an hour", time.Now().Add(20 * time.Minute), "come back in 1 hour to continue"},
		{"reset already passed", time.Now().Add(-time.Minute), "come back in 1 hour to continue"},
		{"ninety minutes", time.Now().Add(90 * time.Minute), "come back in 2 hours to continue"},
		{"most of a day", time.Now().Add(23*time.Hour + 30*time.Minute), "come back in 24 hours to continue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &RateLimitExceededError{UserID: "user-1", Limit: 120, Reset: tt.reset}
			msg := err.UserMessage()
			if !strings.Contains(msg, tt.want) {
				t.Errorf("UserMessage() = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

func TestRateLimitErrorNamesUserAndLimit(t *testing.T) {
	err := &RateLimitExceededError{UserID: "user-1", Limit: 120, Reset: time.Now()}
	got := err.Error()
	if !strings.Contains(got, "120") || !strings.Contains(got, "user-1") {
		t.Errorf("Error() = %q, want the limit and user id", got)
	}
}
