package pipeline

import (
	"context"
	"errors"
	"net"

	"github.com/atef1995/sayarat-sub000/internal/marketplace"
	"github.com/atef1995/sayarat-sub000/internal/models"
)

// Classify maps any raw failure into a typed SubmissionError. It is pure and
// synchronous: its only input is the failure payload, never ambient state.
//
// Priority order: entitlement shortfall, field-naming payloads, connectivity,
// everything else. A subscription shortfall implies quota exceeded, never the
// other way around; QUOTA_EXCEEDED is emitted only when the payload says the
// account has no paid plan at all.
func Classify(err error) *models.SubmissionError {
	if err == nil {
		return nil
	}

	var submissionErr *models.SubmissionError
	if errors.As(err, &submissionErr) {
		return submissionErr
	}

	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case marketplace.CodeNoPlan:
			return &models.SubmissionError{
				Kind:      models.ErrQuotaExceeded,
				Message:   apiErr.Message,
				Retryable: false,
			}
		case marketplace.CodeSubscriptionRequired, marketplace.CodeQuotaExceeded:
			return &models.SubmissionError{
				Kind:      models.ErrSubscriptionRequired,
				Message:   apiErr.Message,
				Retryable: false,
			}
		case marketplace.CodePaymentFailed:
			return &models.SubmissionError{
				Kind:      models.ErrPaymentRequired,
				Message:   apiErr.Message,
				Retryable: true,
			}
		}
		if apiErr.Field != "" {
			return &models.SubmissionError{
				Kind:        models.ErrFieldValidation,
				Message:     apiErr.Message,
				Retryable:   true,
				TargetField: apiErr.Field,
				TargetStep:  models.StepForField(apiErr.Field),
			}
		}
		return &models.SubmissionError{
			Kind:      models.ErrInternal,
			Message:   apiErr.Message,
			Retryable: true,
		}
	}

	if isConnectivity(err) {
		return &models.SubmissionError{
			Kind:      models.ErrNetwork,
			Message:   "network failure, please try again",
			Retryable: true,
		}
	}

	return &models.SubmissionError{
		Kind:      models.ErrInternal,
		Message:   "something went wrong, please try again",
		Retryable: true,
	}
}

// FromValidationOutcome builds the FIELD_VALIDATION error for a failed pass,
// targeting the earliest failing field so the caller can navigate the user
// there even from a different step.
func FromValidationOutcome(outcome models.ValidationOutcome) *models.SubmissionError {
	field := outcome.FirstInvalidField()
	reason := outcome.Fields[field].Reason
	if reason == "" {
		reason = "validation failed"
	}
	return &models.SubmissionError{
		Kind:        models.ErrFieldValidation,
		Message:     reason,
		Retryable:   true,
		TargetField: field,
		TargetStep:  models.StepForField(field),
	}
}

// isConnectivity recognises transport-level trouble: timeouts, cancelled
// deadlines and socket errors.
func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
