package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/atef1995/sayarat-sub000/internal/models"
)

// IIntentClient obtains payment handles from the payment provider via the
// marketplace API.
type IIntentClient interface {
	CreatePaymentIntent(ctx context.Context, items []string) (models.PaymentHandle, error)
}

// ICoordinator manages the optional payment detour of a submission session.
type ICoordinator interface {
	AcquireHandle(ctx context.Context, snap models.DraftSnapshot) (models.PaymentHandle, error)
	Consume() (string, bool)
	Invalidate()
	Current() *models.PaymentHandle
}

// coordinator implements ICoordinator. At most one handle is live; a handle
// is consumed exactly once by the final submission call and must be
// re-acquired if any later stage fails after it was issued.
type coordinator struct {
	client IIntentClient

	mu     sync.Mutex
	handle *models.PaymentHandle
}

// NewCoordinator creates a payment coordinator for one submission session.
func NewCoordinator(client IIntentClient) ICoordinator {
	return &coordinator{client: client}
}

// NeedsPayment reports whether the draft selects at least one paid add-on.
func NeedsPayment(snap models.DraftSnapshot) bool {
	for _, field := range models.PaidAddonFields {
		if snap.BoolField(field) {
			return true
		}
	}
	return false
}

// SelectedAddons returns the paid add-ons the draft has switched on, in the
// registry's order.
func SelectedAddons(snap models.DraftSnapshot) []string {
	var items []string
	for _, field := range models.PaidAddonFields {
		if snap.BoolField(field) {
			items = append(items, field)
		}
	}
	return items
}

// AcquireHandle obtains a payment handle for the draft's paid add-ons. A
// still-live handle from this session is reused rather than re-requested;
// invalidated handles are never resurrected.
func (c *coordinator) AcquireHandle(ctx context.Context, snap models.DraftSnapshot) (models.PaymentHandle, error) {
	c.mu.Lock()
	if c.handle != nil {
		h := *c.handle
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	items := SelectedAddons(snap)
	if len(items) == 0 {
		return models.PaymentHandle{}, fmt.Errorf("draft selects no paid add-ons")
	}

	handle, err := c.client.CreatePaymentIntent(ctx, items)
	if err != nil {
		return models.PaymentHandle{}, fmt.Errorf("failed to acquire payment handle: %w", err)
	}

	c.mu.Lock()
	c.handle = &handle
	c.mu.Unlock()
	return handle, nil
}

// Consume yields the live handle's reference and clears it, so the reference
// reaches the final submission call exactly once. The second caller gets
// ok=false.
func (c *coordinator) Consume() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return "", false
	}
	ref := c.handle.Reference
	c.handle = nil
	return ref, true
}

// Invalidate discards the live handle. Called when a later pipeline stage
// fails after the handle was issued, or on payment cancellation.
func (c *coordinator) Invalidate() {
	c.mu.Lock()
	c.handle = nil
	c.mu.Unlock()
}

// Current returns a copy of the live handle, or nil.
func (c *coordinator) Current() *models.PaymentHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil
	}
	h := *c.handle
	return &h
}
