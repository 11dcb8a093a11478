package marketplace

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/atef1995/sayarat-sub000/internal/config"
	"github.com/atef1995/sayarat-sub000/internal/models"
)

// Client talks to the four marketplace API contracts the pipeline consumes:
// step validation, entitlement status, payment intents and the final listing
// create/update. Each call is context-bound and carries the configured
// per-request timeout; exceeding it surfaces as a transport error.
type Client struct {
	http *resty.Client
}

// NewClient creates a marketplace API client from config.
func NewClient(cfg *config.Config) *Client {
	c := resty.New().
		SetBaseURL(cfg.MarketplaceBaseURL).
		SetTimeout(cfg.MarketplaceTimeout).
		SetHeader("Accept", "application/json")
	if cfg.MarketplaceAPIKey != "" {
		c.SetHeader("X-Api-Key", cfg.MarketplaceAPIKey)
	}
	return &Client{http: c}
}

// validateStepRequest is the POST /validate/step body.
type validateStepRequest struct {
	Step   int                    `json:"step"`
	Fields map[string]interface{} `json:"fields"`
}

type validateStepResponse struct {
	Valid  bool `json:"valid"`
	Errors []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ValidateStep runs the remote check for one form step's fields.
func (c *Client) ValidateStep(ctx context.Context, step int, fields map[string]interface{}) (models.ValidationOutcome, error) {
	var out validateStepResponse
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(validateStepRequest{Step: step, Fields: fields}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/validate/step")
	if err != nil {
		return models.ValidationOutcome{}, fmt.Errorf("validate step %d: %w", step, err)
	}
	if resp.IsError() {
		return models.ValidationOutcome{}, c.asAPIError(resp, &apiErr)
	}

	outcome := models.NewValidationOutcome()
	for _, e := range out.Errors {
		outcome.Fail(e.Field, e.Message)
	}
	for name := range fields {
		outcome.Pass(name)
	}
	outcome.OverallValid = out.Valid && len(out.Errors) == 0
	return outcome, nil
}

type entitlementResponse struct {
	RemainingFree        int    `json:"remaining_free"`
	RequiresSubscription bool   `json:"requires_subscription"`
	Message              string `json:"message"`
}

// EntitlementStatus fetches the quota/subscription snapshot for an account.
func (c *Client) EntitlementStatus(ctx context.Context, accountID string) (models.QuotaStatus, error) {
	var out entitlementResponse
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("account_id", accountID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/entitlement/status")
	if err != nil {
		return models.QuotaStatus{}, fmt.Errorf("entitlement status for %s: %w", accountID, err)
	}
	if resp.IsError() {
		return models.QuotaStatus{}, c.asAPIError(resp, &apiErr)
	}
	return models.QuotaStatus{
		RemainingFreeListings: out.RemainingFree,
		RequiresSubscription:  out.RequiresSubscription,
		StatusMessage:         out.Message,
	}, nil
}

type paymentIntentRequest struct {
	Items []string `json:"items"`
}

type paymentIntentResponse struct {
	Reference string  `json:"reference"`
	AmountDue float64 `json:"amount_due"`
	Currency  string  `json:"currency"`
}

// CreatePaymentIntent obtains a one-shot payment handle for the given add-ons.
func (c *Client) CreatePaymentIntent(ctx context.Context, items []string) (models.PaymentHandle, error) {
	var out paymentIntentResponse
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(paymentIntentRequest{Items: items}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/payment/intent")
	if err != nil {
		return models.PaymentHandle{}, fmt.Errorf("create payment intent: %w", err)
	}
	if resp.IsError() {
		return models.PaymentHandle{}, c.asAPIError(resp, &apiErr)
	}
	return models.PaymentHandle{
		Reference: out.Reference,
		AmountDue: out.AmountDue,
		Currency:  out.Currency,
	}, nil
}

// submitRequest is the final create/update body: the full draft plus the
// consumed payment reference, when one exists.
type submitRequest struct {
	Fields           map[string]interface{} `json:"fields"`
	PaymentReference string                 `json:"payment_reference,omitempty"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// CreateListing persists a new listing and returns its ID.
func (c *Client) CreateListing(ctx context.Context, snap models.DraftSnapshot, paymentRef string) (string, error) {
	var out submitResponse
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(submitRequest{Fields: snap.Fields, PaymentReference: paymentRef}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/listings")
	if err != nil {
		return "", fmt.Errorf("create listing: %w", err)
	}
	if resp.IsError() {
		return "", c.asAPIError(resp, &apiErr)
	}
	return out.ID, nil
}

// UpdateListing persists changes to an existing listing.
func (c *Client) UpdateListing(ctx context.Context, listingID string, snap models.DraftSnapshot, paymentRef string) (string, error) {
	var out submitResponse
	var apiErr errorEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(submitRequest{Fields: snap.Fields, PaymentReference: paymentRef}).
		SetResult(&out).
		SetError(&apiErr).
		Put("/listings/" + listingID)
	if err != nil {
		return "", fmt.Errorf("update listing %s: %w", listingID, err)
	}
	if resp.IsError() {
		return "", c.asAPIError(resp, &apiErr)
	}
	if out.ID == "" {
		return listingID, nil
	}
	return out.ID, nil
}

// asAPIError turns a non-2xx response into an *APIError, falling back to a
// generic one when the body did not decode.
func (c *Client) asAPIError(resp *resty.Response, env *errorEnvelope) error {
	apiErr := env.Error
	apiErr.Status = resp.StatusCode()
	if apiErr.Code == "" && apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return &apiErr
}
