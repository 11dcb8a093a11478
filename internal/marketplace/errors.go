package marketplace

import "fmt"

// Error codes the marketplace API uses in failure payloads. The classifier
// keys off these, so additions here need a classification rule too.
const (
	CodeSubscriptionRequired = "subscription_required"
	CodeQuotaExceeded        = "quota_exceeded"
	CodeNoPlan               = "no_plan"
	CodeValidationFailed     = "validation_failed"
	CodePaymentFailed        = "payment_failed"
)

// APIError is a decoded marketplace failure payload. Transport-level failures
// (connection refused, timeout) are returned as the underlying error instead,
// never wrapped into an APIError.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("marketplace API error %d (%s, field %s): %s", e.Status, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("marketplace API error %d (%s): %s", e.Status, e.Code, e.Message)
}

// errorEnvelope is the wire wrapper around APIError payloads.
type errorEnvelope struct {
	Error APIError `json:"error"`
}
