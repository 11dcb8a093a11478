package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atef1995/sayarat-sub000/internal/marketplace"
	"github.com/atef1995/sayarat-sub000/internal/models"
	"github.com/atef1995/sayarat-sub000/internal/retry"
)

// IEntitlementClient reads the account's entitlement snapshot from the
// marketplace API.
type IEntitlementClient interface {
	EntitlementStatus(ctx context.Context, accountID string) (models.QuotaStatus, error)
}

// IQuotaGate answers "may this identity create a listing now?".
type IQuotaGate interface {
	CheckQuota(ctx context.Context, accountID string) (models.QuotaStatus, error)
	Invalidate()
}

// quotaGate implements IQuotaGate. The status is cached per gate instance
// (one per submission session) and invalidated after a successful submission
// or an entitlement change, so a re-check always sees fresh state.
type quotaGate struct {
	client IEntitlementClient
	policy retry.Policy

	mu     sync.Mutex
	cached *models.QuotaStatus
}

// NewQuotaGate creates a gate over the given entitlement client. Reads are
// retried transparently under the shared policy before an error surfaces.
func NewQuotaGate(client IEntitlementClient, policy retry.Policy) IQuotaGate {
	return &quotaGate{client: client, policy: policy}
}

// CheckQuota returns the entitlement status for an account, serving the
// cached copy when one exists. Transport failures are retried up to the
// policy's bound; the classifier downstream decides retryability of the
// surfaced error.
func (g *quotaGate) CheckQuota(ctx context.Context, accountID string) (models.QuotaStatus, error) {
	g.mu.Lock()
	if g.cached != nil {
		st := *g.cached
		g.mu.Unlock()
		return st, nil
	}
	g.mu.Unlock()

	var status models.QuotaStatus
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		var opErr error
		status, opErr = g.client.EntitlementStatus(ctx, accountID)
		return opErr
	}, isTransient)
	if err != nil {
		return models.QuotaStatus{}, fmt.Errorf("entitlement check for account %s: %w", accountID, err)
	}

	g.mu.Lock()
	g.cached = &status
	g.mu.Unlock()
	return status, nil
}

// Invalidate drops the cached status so the next CheckQuota hits the API.
func (g *quotaGate) Invalidate() {
	g.mu.Lock()
	g.cached = nil
	g.mu.Unlock()
}

// RequiresGating is the pure gating decision: submission must pause for
// entitlement resolution when a subscription is demanded or the free tier is
// used up.
func RequiresGating(status models.QuotaStatus) bool {
	return status.RequiresSubscription || status.RemainingFreeListings <= 0
}

// isTransient treats only transport-level failures as retryable; a decoded
// API error payload is a definitive answer and must not be retried here.
func isTransient(err error) bool {
	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) {
		// 5xx answers may resolve on retry; anything else is final.
		return apiErr.Status >= 500
	}
	return true
}
