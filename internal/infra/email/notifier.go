package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, jobID, videoKey, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := failureMessage(n.from, userEmail, jobID, videoKey, errorMsg)

	if err := smtp.SendMail(addr, nil, n.from, []string{userEmail}, []byte(msg)); err != nil {
		n.logger.Error("failed to send extraction failure email",
			zap.String("to", userEmail),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("extraction failure email sent",
		zap.String("to", userEmail),
		zap.String("job_id", jobID),
	)
	return nil
}

// failureMessage renders the RFC 5322 message. Header values are stripped of line breaks.
func failureMessage(from, to, jobID, videoKey, errorMsg string) string {
	subject := fmt.Sprintf("Keyframe extraction failed [job %s]", jobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"We could not extract keyframes from your screen recording.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Recording: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Recordings must be mov, mp4, mkv or webm files with a readable duration. "+
			"Please upload the recording again or contact support.\r\n\r\n"+
			"-- Keyframe Extraction Service",
		jobID, videoKey, errorMsg,
	)

	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		headerValue(from), headerValue(to), headerValue(subject), body,
	)
}

func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
