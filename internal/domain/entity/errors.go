package entity

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorKindDecode            ErrorKind = "DECODE_ERROR"
	ErrorKindSubmission        ErrorKind = "SUBMISSION_ERROR"
	ErrorKindCredentialInvalid ErrorKind = "CREDENTIAL_INVALID"
	ErrorKindPoll              ErrorKind = "POLL_ERROR"
	ErrorKindPollTimeout       ErrorKind = "POLL_TIMEOUT"
	ErrorKindGenerationFailed  ErrorKind = "GENERATION_FAILED"
	ErrorKindDownload          ErrorKind = "DOWNLOAD_ERROR"
	ErrorKindMissingResult     ErrorKind = "MISSING_RESULT"
	ErrorKindCancelled         ErrorKind = "CANCELLED"
	ErrorKindInternal          ErrorKind = "INTERNAL"
)

// Error is a classified failure of one step of an extension. Op names the step
// ("extract_frame", "submit", "poll", "fetch_result", ...).
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels such as ErrCredentialInvalid regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrDecode            = &Error{Kind: ErrorKindDecode}
	ErrSubmission        = &Error{Kind: ErrorKindSubmission}
	ErrCredentialInvalid = &Error{Kind: ErrorKindCredentialInvalid}
	ErrPoll              = &Error{Kind: ErrorKindPoll}
	ErrPollTimeout       = &Error{Kind: ErrorKindPollTimeout}
	ErrGenerationFailed  = &Error{Kind: ErrorKindGenerationFailed}
	ErrDownload          = &Error{Kind: ErrorKindDownload}
	ErrMissingResult     = &Error{Kind: ErrorKindMissingResult}
)

// KindOf reports the classification of err. Unclassified errors are INTERNAL,
// except context cancellation.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindCancelled
	}
	return ErrorKindInternal
}

var userMessages = map[ErrorKind]string{
	ErrorKindDecode:            "Could not read a frame from the uploaded video, try a different clip",
	ErrorKindSubmission:        "The generation service rejected the request",
	ErrorKindCredentialInvalid: "The selected API key was not recognized, select a key again",
	ErrorKindPoll:              "Lost contact with the generation service while waiting for the video",
	ErrorKindPollTimeout:       "The generation did not finish in time",
	ErrorKindGenerationFailed:  "The generation service could not produce a video",
	ErrorKindDownload:          "Failed to download result video",
	ErrorKindMissingResult:     "Generation completed but no video URI was returned",
	ErrorKindCancelled:         "The generation was cancelled",
	ErrorKindInternal:          "Something went wrong while processing the video",
}

// UserMessage turns err into the single message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := userMessages[KindOf(err)]
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}
