package email

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFailureMessage(t *testing.T) {
	msg := failureMessage("noreply@keyframes.local", "ana@example.com", "job-1", "u1/rec.mp4", "validation failed: unsupported_format")

	headers, body, ok := strings.Cut(msg, "\r\n\r\n")
	require.True(t, ok)
	assert.Equal(t,
		"From: noreply@keyframes.local\r\nTo: ana@example.com\r\nSubject: Keyframe extraction failed [job job-1]",
		headers,
	)
	assert.Contains(t, body, "Recording: u1/rec.mp4")
	assert.Contains(t, body, "Error: validation failed: unsupported_format")
}

func TestFailureMessageStripsHeaderInjection(t *testing.T) {
	msg := failureMessage("a@b.c", "victim@x.y\r\nBcc: other@x.y", "job", "k", "e")
	headers, _, _ := strings.Cut(msg, "\r\n\r\n")
	assert.NotContains(t, headers, "\r\nBcc:")
}

func TestNotifyFailureUnreachableServer(t *testing.T) {
	n := NewSMTPNotifier("127.0.0.1", 1, "noreply@keyframes.local", zap.NewNop())
	err := n.NotifyFailure(context.Background(), "ana@example.com", "job-1", "k", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send email")
}
