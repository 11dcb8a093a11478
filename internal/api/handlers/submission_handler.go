package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/atef1995/sayarat-sub000/internal/api/middleware"
	"github.com/atef1995/sayarat-sub000/internal/config"
	"github.com/atef1995/sayarat-sub000/internal/journal"
	"github.com/atef1995/sayarat-sub000/internal/models"
	"github.com/atef1995/sayarat-sub000/internal/pipeline"
	"github.com/atef1995/sayarat-sub000/internal/session"
	"github.com/atef1995/sayarat-sub000/internal/tasks"
)

// SubmissionHandler exposes the listing submission pipeline over REST.
type SubmissionHandler struct {
	cfg        *config.Config
	manager    *session.Manager
	journal    journal.IAttemptJournal
	taskClient *asynq.Client
}

// NewSubmissionHandler creates the handler. journal and taskClient may be nil
// when running without Mongo or the background worker.
func NewSubmissionHandler(cfg *config.Config, manager *session.Manager, j journal.IAttemptJournal, taskClient *asynq.Client) *SubmissionHandler {
	return &SubmissionHandler{cfg: cfg, manager: manager, journal: j, taskClient: taskClient}
}

type createSessionRequest struct {
	Fields    map[string]interface{} `json:"fields"`
	ListingID string                 `json:"listing_id"`
}

type updateFieldRequest struct {
	Field string      `json:"field" binding:"required"`
	Value interface{} `json:"value"`
}

type stateResponse struct {
	SessionID  string                    `json:"session_id"`
	State      string                    `json:"state"`
	ListingID  string                    `json:"listing_id,omitempty"`
	Error      *models.SubmissionError   `json:"error,omitempty"`
	Quota      *models.QuotaStatus       `json:"quota,omitempty"`
	Payment    *models.PaymentHandle     `json:"payment,omitempty"`
	Generation uint64                    `json:"generation"`
	Remote     *models.ValidationOutcome `json:"remote_validation,omitempty"`
}

func (h *SubmissionHandler) stateOf(sess *session.Session) stateResponse {
	st := sess.Pipeline.Status()
	resp := stateResponse{
		SessionID:  sess.ID,
		State:      st.State.String(),
		ListingID:  st.ListingID,
		Error:      st.Error,
		Quota:      st.Quota,
		Payment:    st.Payment,
		Generation: sess.Store.Generation(),
	}
	if outcome, gen, ok := sess.RemoteOutcome(); ok && gen == resp.Generation {
		resp.Remote = &outcome
	}
	return resp
}

// getSession resolves the session and enforces ownership; it writes the error
// response itself and returns nil when the caller should stop.
func (h *SubmissionHandler) getSession(c *gin.Context) *session.Session {
	sess, err := h.manager.Get(c.Request.Context(), c.Param("id"), middleware.AccountID(c))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission session not found"})
		return nil
	}
	if errors.Is(err, session.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Submission session belongs to another account"})
		return nil
	}
	if err != nil {
		log.Printf("Error loading session %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load submission session"})
		return nil
	}
	return sess
}

// CreateSession starts a new submission session, optionally pre-filled for
// editing an existing listing.
func (h *SubmissionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	sess, err := h.manager.Create(c.Request.Context(), middleware.AccountID(c), req.Fields, req.ListingID)
	if err != nil {
		log.Printf("Error creating submission session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create submission session"})
		return
	}
	c.JSON(http.StatusCreated, h.stateOf(sess))
}

// GetSession reports the session's pipeline position, draft generation and
// the latest advisory validation picture.
func (h *SubmissionHandler) GetSession(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, h.stateOf(sess))
}

// UpdateField applies one field edit and returns the local validation
// verdict; remote validation follows asynchronously behind the debounce
// window.
func (h *SubmissionHandler) UpdateField(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	var req updateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field is required"})
		return
	}

	gen, outcome := h.manager.UpdateField(c.Request.Context(), sess, req.Field, req.Value)
	c.JSON(http.StatusOK, gin.H{
		"generation": gen,
		"validation": outcome,
	})
}

// respondResult maps a pipeline operation outcome to an HTTP response and
// schedules payment expiry when the pipeline paused at the payment step.
func (h *SubmissionHandler) respondResult(c *gin.Context, sess *session.Session, res pipeline.Result, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "Operation not valid in the current state", "state": sess.Pipeline.Status().State.String()})
		return
	case errors.Is(err, pipeline.ErrNotRetryable):
		c.JSON(http.StatusConflict, h.stateOf(sess))
		return
	case err != nil:
		log.Printf("Pipeline error for session %s: %v", sess.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Submission pipeline failure"})
		return
	}

	h.manager.Persist(c.Request.Context(), sess)

	if res.State == pipeline.StateAwaitingPayment && h.taskClient != nil {
		if st := sess.Pipeline.Status(); st.Payment != nil {
			if err := tasks.EnqueuePaymentExpiry(c.Request.Context(), h.taskClient, h.cfg.PaymentHandleTTL, sess.ID, sess.AccountID, st.Payment.Reference); err != nil {
				log.Printf("WARN: failed to schedule payment expiry for session %s: %v", sess.ID, err)
			}
		}
	}

	c.JSON(http.StatusOK, h.stateOf(sess))
}

// Submit starts (or joins) a submission attempt and blocks until it settles.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	res, err := sess.Pipeline.Submit(c.Request.Context())
	h.respondResult(c, sess, res, err)
}

// Retry re-runs the pipeline after a retryable failure.
func (h *SubmissionHandler) Retry(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	res, err := sess.Pipeline.Retry(c.Request.Context())
	h.respondResult(c, sess, res, err)
}

// CancelSession abandons the flow and discards the draft.
func (h *SubmissionHandler) CancelSession(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	h.manager.Drop(c.Request.Context(), sess.ID)
	c.JSON(http.StatusOK, gin.H{"state": pipeline.StateIdle.String()})
}

// ResolveEntitlement resumes a session paused for subscription or quota
// resolution; gating is re-checked, never assumed cleared.
func (h *SubmissionHandler) ResolveEntitlement(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	res, err := sess.Pipeline.ResolveEntitlement(c.Request.Context())
	h.respondResult(c, sess, res, err)
}

// ConfirmPayment resumes a session whose payment completed.
func (h *SubmissionHandler) ConfirmPayment(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	res, err := sess.Pipeline.ConfirmPayment(c.Request.Context())
	h.respondResult(c, sess, res, err)
}

// CancelPayment abandons the pending payment, failing the attempt as
// retryable.
func (h *SubmissionHandler) CancelPayment(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	res, err := sess.Pipeline.CancelPayment()
	h.respondResult(c, sess, res, err)
}

// ListAttempts returns the journaled attempt history for the session.
func (h *SubmissionHandler) ListAttempts(c *gin.Context) {
	sess := h.getSession(c)
	if sess == nil {
		return
	}
	if h.journal == nil {
		c.JSON(http.StatusOK, gin.H{"attempts": []interface{}{}})
		return
	}
	recs, err := h.journal.RecentAttempts(c.Request.Context(), sess.ID, 20)
	if err != nil {
		log.Printf("Error listing attempts for session %s: %v", sess.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load attempt history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": recs})
}
