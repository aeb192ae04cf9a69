package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusSubmitting JobStatus = "SUBMITTING"
	JobStatusPolling    JobStatus = "POLLING"
	JobStatusSucceeded  JobStatus = "SUCCEEDED"
	JobStatusFailed     JobStatus = "FAILED"
)

type Job struct {
	ID              uuid.UUID
	UserID          string
	UserEmail       string
	VideoKey        string
	Prompt          string
	Config          GenerationConfig
	SeedTimestamp   float64
	Status          JobStatus
	OperationName   string
	ResultLocator   string
	ResultKey       string
	FrameKey        string
	ProgressMessage string
	PollCount       int
	ErrorKind       ErrorKind
	ErrorMessage    string
	Attempt         int
	MaxAttempts     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewJob(userID, videoKey, prompt string, cfg GenerationConfig, seedTimestamp float64, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:            uuid.New(),
		UserID:        userID,
		VideoKey:      videoKey,
		Prompt:        prompt,
		Config:        cfg,
		SeedTimestamp: seedTimestamp,
		Status:        JobStatusPending,
		Attempt:       1,
		MaxAttempts:   maxAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

type TransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}

func (j *Job) MarkSubmitting() error {
	if j.Status != JobStatusPending {
		return &TransitionError{From: j.Status, To: JobStatusSubmitting}
	}
	j.Status = JobStatusSubmitting
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (j *Job) MarkPolling(operationName string) error {
	if j.Status != JobStatusSubmitting && j.Status != JobStatusPolling {
		return &TransitionError{From: j.Status, To: JobStatusPolling}
	}
	j.Status = JobStatusPolling
	j.OperationName = operationName
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordProgress stores the display message shown before the next poll.
func (j *Job) RecordProgress(message string) {
	j.ProgressMessage = message
	j.PollCount++
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkSucceeded(resultLocator, resultKey string) error {
	if j.Status != JobStatusPolling {
		return &TransitionError{From: j.Status, To: JobStatusSucceeded}
	}
	now := time.Now().UTC()
	j.Status = JobStatusSucceeded
	j.ResultLocator = resultLocator
	j.ResultKey = resultKey
	j.ErrorKind = ""
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

func (j *Job) MarkFailed(kind ErrorKind, message string) error {
	if j.Status == JobStatusSucceeded {
		return &TransitionError{From: j.Status, To: JobStatusFailed}
	}
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorKind = kind
	j.ErrorMessage = message
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempt < j.MaxAttempts
}

// ResetForRetry puts a failed job back to PENDING with the same inputs.
func (j *Job) ResetForRetry() error {
	if !j.CanRetry() {
		return &TransitionError{From: j.Status, To: JobStatusPending}
	}
	j.Status = JobStatusPending
	j.Attempt++
	j.OperationName = ""
	j.ResultLocator = ""
	j.ProgressMessage = ""
	j.PollCount = 0
	j.ErrorKind = ""
	j.ErrorMessage = ""
	j.CompletedAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}
