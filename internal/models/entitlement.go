package models

// QuotaStatus is the entitlement snapshot returned by the marketplace API.
// It is refreshed on demand and invalidated after a successful submission or
// a subscription state change; it is never cached across accounts.
type QuotaStatus struct {
	RemainingFreeListings int    `json:"remaining_free_listings"`
	RequiresSubscription  bool   `json:"requires_subscription"`
	StatusMessage         string `json:"status_message,omitempty"`
}

// PaymentHandle is a one-shot reference obtained from the payment provider.
// It is consumed exactly once by the final submission call and must be
// re-acquired if any later stage fails after it was issued.
type PaymentHandle struct {
	Reference string  `json:"reference"`
	AmountDue float64 `json:"amount_due"`
	Currency  string  `json:"currency"`
}
