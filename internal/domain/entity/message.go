package entity

import "github.com/google/uuid"

// ExtensionRequestMessage is the inbound message from the video.extension queue.
type ExtensionRequestMessage struct {
	JobID         uuid.UUID        `json:"job_id"`
	UserID        string           `json:"user_id"`
	UserEmail     string           `json:"user_email,omitempty"`
	VideoKey      string           `json:"video_key"`
	Prompt        string           `json:"prompt,omitempty"`
	Config        GenerationConfig `json:"config"`
	SeedTimestamp float64          `json:"seed_timestamp"`
	Attempt       int              `json:"attempt"`
}

// ExtensionStatusMessage is the outbound message published to the status queue.
type ExtensionStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	ResultKey    string    `json:"result_key,omitempty"`
	Progress     string    `json:"progress,omitempty"`
	PollCount    int       `json:"poll_count,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}

func NewRequestMessage(job *Job) ExtensionRequestMessage {
	return ExtensionRequestMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		UserEmail:     job.UserEmail,
		VideoKey:      job.VideoKey,
		Prompt:        job.Prompt,
		Config:        job.Config,
		SeedTimestamp: job.SeedTimestamp,
		Attempt:       job.Attempt,
	}
}

func NewStatusMessage(job *Job) ExtensionStatusMessage {
	return ExtensionStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		ResultKey:    job.ResultKey,
		Progress:     job.ProgressMessage,
		PollCount:    job.PollCount,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
}

// JobFromRequest rebuilds a job record for a message whose row is missing.
func JobFromRequest(msg ExtensionRequestMessage, maxAttempts int) *Job {
	job := NewJob(msg.UserID, msg.VideoKey, msg.Prompt, msg.Config, msg.SeedTimestamp, maxAttempts)
	job.ID = msg.JobID
	job.UserEmail = msg.UserEmail
	if msg.Attempt > 0 {
		job.Attempt = msg.Attempt
	}
	return job
}
