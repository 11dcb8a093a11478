package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atef1995/sayarat-sub000/internal/api"
	"github.com/atef1995/sayarat-sub000/internal/auth"
	"github.com/atef1995/sayarat-sub000/internal/config"
	"github.com/atef1995/sayarat-sub000/internal/models"
	"github.com/atef1995/sayarat-sub000/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		JwtSecret:               "test-secret",
		JwtTTL:                  time.Hour,
		PaymentHandleTTL:        time.Minute,
		RateLimitSoftBucketSize: 1000,
		RateLimitSoftRefillRate: 1000,
		RateLimitHardBucketSize: 1000,
		RateLimitHardRefillRate: 1000,
	}
}

type testEnv struct {
	router       *gin.Engine
	cfg          *config.Config
	entitlements *stubEntitlements
	submitter    *stubSubmitter
	manager      *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	entitlements := &stubEntitlements{status: models.QuotaStatus{RemainingFreeListings: 3}}
	submitter := &stubSubmitter{}
	manager := newStubManager(entitlements, submitter)
	return &testEnv{
		router:       api.SetupRouter(cfg, manager, nil, nil),
		cfg:          cfg,
		entitlements: entitlements,
		submitter:    submitter,
		manager:      manager,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, account string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		token, err := auth.GenerateJWT(account, e.cfg.JwtSecret, e.cfg.JwtTTL)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) createSession(t *testing.T, fields map[string]interface{}, account string) string {
	t.Helper()
	w := e.request(t, "POST", "/v1/submission", map[string]interface{}{"fields": fields}, account)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestSubmissionRequiresAuth(t *testing.T) {
	e := newTestEnv(t)
	w := e.request(t, "POST", "/v1/submission", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndGetSession(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t, nil, "acct_1")

	w := e.request(t, "GET", "/v1/submission/"+id, nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "IDLE", body["state"])

	// Ownership is enforced.
	w = e.request(t, "GET", "/v1/submission/"+id, nil, "acct_2")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.request(t, "GET", "/v1/submission/unknown", nil, "acct_1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateFieldReturnsGenerationAndVerdict(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t, nil, "acct_1")

	w := e.request(t, "PUT", "/v1/submission/"+id+"/field", map[string]interface{}{
		"field": models.FieldTitle,
		"value": "ab",
	}, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["generation"])

	validation := body["validation"].(map[string]interface{})
	assert.Equal(t, false, validation["overall_valid"])
	fields := validation["fields"].(map[string]interface{})
	title := fields[models.FieldTitle].(map[string]interface{})
	assert.Equal(t, false, title["valid"])
}

func TestSubmitHappyPath(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t, validDraftFields(), "acct_1")

	w := e.request(t, "POST", "/v1/submission/"+id+"/submit", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "SUCCESS", body["state"])
	assert.Equal(t, "listing_new", body["listing_id"])
	assert.Equal(t, 1, e.submitter.calls)
}

func TestSubmitInvalidDraftFailsWithFieldError(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t, nil, "acct_1")

	w := e.request(t, "POST", "/v1/submission/"+id+"/submit", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "FAILED", body["state"])

	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "FIELD_VALIDATION", errObj["kind"])
	assert.Equal(t, true, errObj["retryable"])
	assert.Zero(t, e.submitter.calls)
}

func TestEntitlementPauseAndResolve(t *testing.T) {
	e := newTestEnv(t)
	e.entitlements.set(models.QuotaStatus{RequiresSubscription: true, StatusMessage: "free tier exhausted"})
	id := e.createSession(t, validDraftFields(), "acct_1")

	w := e.request(t, "POST", "/v1/submission/"+id+"/submit", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AWAITING_ENTITLEMENT", decode(t, w)["state"])

	// Resolving without an actual grant keeps the pipeline paused.
	w = e.request(t, "POST", "/v1/submission/"+id+"/entitlement/resolved", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AWAITING_ENTITLEMENT", decode(t, w)["state"])

	e.entitlements.set(models.QuotaStatus{RemainingFreeListings: 1})
	w = e.request(t, "POST", "/v1/submission/"+id+"/entitlement/resolved", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUCCESS", decode(t, w)["state"])
}

func TestPaymentDetourOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	fields := validDraftFields()
	fields[models.FieldAddonFeatured] = true
	id := e.createSession(t, fields, "acct_1")

	w := e.request(t, "POST", "/v1/submission/"+id+"/submit", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "AWAITING_PAYMENT", body["state"])
	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, "pay_test", payment["reference"])

	w = e.request(t, "POST", "/v1/submission/"+id+"/payment/confirm", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUCCESS", decode(t, w)["state"])
	assert.Equal(t, "pay_test", e.submitter.lastRef)
}

func TestPaymentCancelIsRetryable(t *testing.T) {
	e := newTestEnv(t)
	fields := validDraftFields()
	fields[models.FieldAddonHighlight] = true
	id := e.createSession(t, fields, "acct_1")

	w := e.request(t, "POST", "/v1/submission/"+id+"/submit", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "AWAITING_PAYMENT", decode(t, w)["state"])

	w = e.request(t, "POST", "/v1/submission/"+id+"/payment/cancel", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "FAILED", body["state"])
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "PAYMENT_REQUIRED", errObj["kind"])
	assert.Equal(t, true, errObj["retryable"])

	// Confirming a cancelled payment is a state conflict.
	w = e.request(t, "POST", "/v1/submission/"+id+"/payment/confirm", nil, "acct_1")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelSessionDiscardsIt(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t, validDraftFields(), "acct_1")

	w := e.request(t, "POST", "/v1/submission/"+id+"/cancel", nil, "acct_1")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, "GET", "/v1/submission/"+id, nil, "acct_1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryWithoutFailureConflicts(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t, validDraftFields(), "acct_1")

	w := e.request(t, "POST", "/v1/submission/"+id+"/retry", nil, "acct_1")
	assert.Equal(t, http.StatusConflict, w.Code)
}
