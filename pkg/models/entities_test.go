package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptchaBlocked(t *testing.T) {
	tests := []struct {
		name    string
		attempt RemovalAttempt
		blocked bool
		url     string
	}{
		{
			name:    "pending with marker",
			attempt: RemovalAttempt{Status: RemovalPending, ErrorMessage: "CAPTCHA_REQUIRED:https://b.test/verify"},
			blocked: true,
			url:     "https://b.test/verify",
		},
		{
			name:    "pending without marker",
			attempt: RemovalAttempt{Status: RemovalPending, ErrorMessage: ""},
		},
		{
			name:    "failed with marker text is not parked",
			attempt: RemovalAttempt{Status: RemovalFailed, ErrorMessage: "CAPTCHA_REQUIRED:https://b.test/verify"},
		},
		{
			name:    "marker without url",
			attempt: RemovalAttempt{Status: RemovalPending, ErrorMessage: "CAPTCHA_REQUIRED:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.blocked, tt.attempt.CaptchaBlocked())
			require.Equal(t, tt.url, tt.attempt.CaptchaURL())
		})
	}
}

func TestScanJobStatusTerminal(t *testing.T) {
	require.False(t, ScanJobInProgress.Terminal())
	require.True(t, ScanJobCompleted.Terminal())
	require.True(t, ScanJobFailed.Terminal())
	require.True(t, ScanJobCancelled.Terminal())
}
