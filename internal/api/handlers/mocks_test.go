package handlers_test

import (
	"context"
	"sync"
	"time"

	"github.com/atef1995/sayarat-sub000/internal/models"
	"github.com/atef1995/sayarat-sub000/internal/retry"
	"github.com/atef1995/sayarat-sub000/internal/session"
)

// --- Stub marketplace collaborators ---

type stubRemote struct{}

func (stubRemote) ValidateStep(ctx context.Context, step int, fields map[string]interface{}) (models.ValidationOutcome, error) {
	return models.NewValidationOutcome(), nil
}

type stubEntitlements struct {
	mu     sync.Mutex
	status models.QuotaStatus
}

func (s *stubEntitlements) EntitlementStatus(ctx context.Context, accountID string) (models.QuotaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *stubEntitlements) set(status models.QuotaStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

type stubIntents struct{}

func (stubIntents) CreatePaymentIntent(ctx context.Context, items []string) (models.PaymentHandle, error) {
	return models.PaymentHandle{Reference: "pay_test", AmountDue: 9.99, Currency: "USD"}, nil
}

type stubSubmitter struct {
	mu      sync.Mutex
	calls   int
	lastRef string
}

func (s *stubSubmitter) CreateListing(ctx context.Context, snap models.DraftSnapshot, paymentRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastRef = paymentRef
	return "listing_new", nil
}

func (s *stubSubmitter) UpdateListing(ctx context.Context, listingID string, snap models.DraftSnapshot, paymentRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastRef = paymentRef
	return listingID, nil
}

func newStubManager(entitlements *stubEntitlements, submitter *stubSubmitter) *session.Manager {
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return session.NewManager(nil, stubRemote{}, entitlements, stubIntents{}, submitter, nil, policy, 10*time.Millisecond)
}

// validDraftFields is a draft that passes local validation as-is.
func validDraftFields() map[string]interface{} {
	return map[string]interface{}{
		models.FieldMake:        "Toyota",
		models.FieldModel:       "Corolla",
		models.FieldYear:        2020,
		models.FieldMileage:     45000,
		models.FieldTitle:       "2020 Toyota Corolla LE",
		models.FieldPrice:       10500,
		models.FieldListingType: "sale",
		models.FieldCity:        "Amman",
		models.FieldCountryCode: "JO",
	}
}
