package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"go.uber.org/zap"
)

var _ port.FailureNotifier = (*SMTPNotifier)(nil)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger, send: smtp.SendMail}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail string, job *entity.Job) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	jobID := job.ID.String()

	subject := fmt.Sprintf("FIAP X - Video Extension Failed [Job %s]", jobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"We could not extend your video.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Video: %s\r\n"+
			"Attempt: %d of %d\r\n"+
			"Error: %s\r\n\r\n"+
			"%s\r\n\r\n"+
			"-- FIAP X Video Extender",
		jobID, job.VideoKey, job.Attempt, job.MaxAttempts, job.ErrorMessage, nextStep(job),
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, userEmail, subject, body,
	)

	err := n.send(addr, nil, n.from, []string{userEmail}, []byte(msg))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("job_id", jobID),
	)
	return nil
}

func nextStep(job *entity.Job) string {
	switch {
	case job.ErrorKind == entity.ErrorKindCredentialInvalid:
		return "Your API key was rejected. Select a key again, then retry the extension."
	case job.ErrorKind == entity.ErrorKindDecode:
		return "Please try again with a different clip."
	case job.CanRetry():
		return "You can retry the extension from your gallery."
	default:
		return "No retries are left for this job. Please upload the video again."
	}
}
