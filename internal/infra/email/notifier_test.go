package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func failedJob(kind entity.ErrorKind) *entity.Job {
	job := entity.NewJob("user-1", "user-1/clip.mp4", "", entity.DefaultGenerationConfig(), 0, 3)
	_ = job.MarkFailed(kind, "The selected API key was not recognized, select a key again")
	return job
}

func TestNotifyFailure(t *testing.T) {
	n := NewSMTPNotifier("mailhog", 1025, "noreply@fiapx.local", zap.NewNop())

	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	job := failedJob(entity.ErrorKindCredentialInvalid)
	require.NoError(t, n.NotifyFailure(context.Background(), "u@example.com", job))

	assert.Equal(t, "mailhog:1025", gotAddr)
	assert.Equal(t, []string{"u@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: FIAP X - Video Extension Failed [Job "+job.ID.String()+"]")
	assert.Contains(t, gotMsg, "Select a key again")
	assert.Contains(t, gotMsg, "Attempt: 1 of 3")
}

func TestNotifyFailureSendError(t *testing.T) {
	n := NewSMTPNotifier("mailhog", 1025, "noreply@fiapx.local", zap.NewNop())
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := n.NotifyFailure(context.Background(), "u@example.com", failedJob(entity.ErrorKindPoll))
	assert.ErrorContains(t, err, "connection refused")
}

func TestNextStep(t *testing.T) {
	assert.Contains(t, nextStep(failedJob(entity.ErrorKindDecode)), "different clip")
	assert.Contains(t, nextStep(failedJob(entity.ErrorKindPoll)), "retry")

	exhausted := failedJob(entity.ErrorKindPoll)
	exhausted.Attempt = exhausted.MaxAttempts
	assert.Contains(t, nextStep(exhausted), "No retries")
}
