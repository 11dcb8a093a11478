package models

import "fmt"

// ErrorKind is the submission failure taxonomy.
type ErrorKind string

const (
	ErrFieldValidation      ErrorKind = "FIELD_VALIDATION"
	ErrSubscriptionRequired ErrorKind = "SUBSCRIPTION_REQUIRED"
	// ErrQuotaExceeded specialises SUBSCRIPTION_REQUIRED for accounts with no
	// paid plan at all. A subscription shortfall implies quota exceeded, never
	// the other way around.
	ErrQuotaExceeded   ErrorKind = "QUOTA_EXCEEDED"
	ErrPaymentRequired ErrorKind = "PAYMENT_REQUIRED"
	ErrNetwork         ErrorKind = "NETWORK"
	ErrInternal        ErrorKind = "INTERNAL"
)

// SubmissionError is a classified failure of one submission attempt. It lives
// only until the next attempt supersedes it.
type SubmissionError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Retryable   bool      `json:"retryable"`
	TargetField string    `json:"target_field,omitempty"`
	TargetStep  int       `json:"target_step,omitempty"`
}

func (e *SubmissionError) Error() string {
	if e.TargetField != "" {
		return fmt.Sprintf("%s (field %s, step %d): %s", e.Kind, e.TargetField, e.TargetStep, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// BlocksRetry reports whether a plain retry is refused: the caller must first
// change the draft or resolve the blocking condition.
func (e *SubmissionError) BlocksRetry() bool {
	return !e.Retryable
}
