package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/atef1995/sayarat-sub000/internal/draft"
	"github.com/atef1995/sayarat-sub000/internal/gate"
	"github.com/atef1995/sayarat-sub000/internal/models"
	"github.com/atef1995/sayarat-sub000/internal/payment"
	"github.com/atef1995/sayarat-sub000/internal/retry"
)

var (
	// ErrInvalidState is returned when an external event does not apply to
	// the machine's current state.
	ErrInvalidState = errors.New("operation not valid in the current pipeline state")
	// ErrNotRetryable is returned when retry is refused: the caller must
	// change the draft or resolve the blocking condition first.
	ErrNotRetryable = errors.New("submission error is not retryable")
)

// IValidator is the validation collaborator as the orchestrator sees it.
type IValidator interface {
	ValidateLocal(snap models.DraftSnapshot) models.ValidationOutcome
	ValidateRemote(ctx context.Context, snap models.DraftSnapshot, changed []string) (models.ValidationOutcome, error)
}

// ISubmitter performs the final create/update call against the marketplace.
type ISubmitter interface {
	CreateListing(ctx context.Context, snap models.DraftSnapshot, paymentRef string) (string, error)
	UpdateListing(ctx context.Context, listingID string, snap models.DraftSnapshot, paymentRef string) (string, error)
}

// AttemptRecord is the journal entry for one concluded submission attempt.
type AttemptRecord struct {
	SessionID  string           `json:"session_id"`
	AccountID  string           `json:"account_id"`
	FinalState string           `json:"final_state"`
	ErrorKind  models.ErrorKind `json:"error_kind,omitempty"`
	Message    string           `json:"message,omitempty"`
	ListingID  string           `json:"listing_id,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// IJournal records concluded attempts. Implementations must be non-blocking
// friendly: the orchestrator calls RecordAttempt on a background goroutine
// and ignores failures.
type IJournal interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
}

// Result is what one submission attempt settled to: a terminal state, a
// failure, or a suspension point awaiting external action.
type Result struct {
	State     State
	ListingID string
	Err       *models.SubmissionError
}

// Status is the read-only view exposed to the UI layer. It carries no
// generation counters and no raw network payloads.
type Status struct {
	State     State                 `json:"state"`
	Error     *models.SubmissionError `json:"error,omitempty"`
	ListingID string                `json:"listing_id,omitempty"`
	Quota     *models.QuotaStatus   `json:"quota,omitempty"`
	Payment   *models.PaymentHandle `json:"payment,omitempty"`
}

// Orchestrator sequences one submission session through local validation,
// remote validation, quota gating, the optional payment detour and the final
// create/update call. All collaborators are injected; the orchestrator owns
// no I/O of its own.
type Orchestrator struct {
	sessionID string
	accountID string

	store     *draft.Store
	validator IValidator
	quota     gate.IQuotaGate
	payments  payment.ICoordinator
	submitter ISubmitter
	journal   IJournal // optional
	policy    retry.Policy

	mu         sync.Mutex
	state      State
	lastErr    *models.SubmissionError
	listingID  string
	quotaState *models.QuotaStatus
	attempt    uint64
	running    bool
	cancelRun  context.CancelFunc
	waiters    []chan Result
}

// NewOrchestrator creates a pipeline for one submission session. journal may
// be nil.
func NewOrchestrator(sessionID, accountID string, store *draft.Store, validator IValidator, quota gate.IQuotaGate, payments payment.ICoordinator, submitter ISubmitter, journal IJournal, policy retry.Policy) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		accountID: accountID,
		store:     store,
		validator: validator,
		quota:     quota,
		payments:  payments,
		submitter: submitter,
		journal:   journal,
		policy:    policy,
		state:     StateIdle,
	}
}

// Submit starts a submission attempt, or joins the one already in flight.
// Calling Submit while the machine is in any state other than IDLE or FAILED
// never starts a second attempt: an in-flight attempt is joined, a paused or
// terminal machine reports its current position. From FAILED it behaves like
// Retry and is refused for non-retryable errors.
func (o *Orchestrator) Submit(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.running {
		return o.joinLocked(ctx)
	}
	switch {
	case o.state == StateSuccess || IsPaused(o.state):
		res := o.resultLocked()
		o.mu.Unlock()
		return res, nil
	case o.state == StateFailed && o.lastErr != nil && o.lastErr.BlocksRetry():
		res := o.resultLocked()
		o.mu.Unlock()
		return res, ErrNotRetryable
	case o.state != StateIdle && o.state != StateFailed:
		// Mid-pipeline without a running attempt: report position, do not fork.
		res := o.resultLocked()
		o.mu.Unlock()
		return res, nil
	}
	runCtx := o.beginAttemptLocked(ctx)
	o.mu.Unlock()

	return o.run(runCtx, EventSubmit), nil
}

// Retry re-enters the pipeline from a retryable failure, restarting at local
// validation. A stale payment handle is never reused: it was invalidated when
// the failure occurred, and a fresh one is acquired if the draft still needs
// payment.
func (o *Orchestrator) Retry(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.running {
		return o.joinLocked(ctx)
	}
	if o.state != StateFailed {
		o.mu.Unlock()
		return Result{}, ErrInvalidState
	}
	if o.lastErr != nil && o.lastErr.BlocksRetry() {
		o.mu.Unlock()
		return Result{}, ErrNotRetryable
	}
	runCtx := o.beginAttemptLocked(ctx)
	o.mu.Unlock()

	return o.run(runCtx, EventRetry), nil
}

// ResolveEntitlement re-enters the pipeline after an external entitlement
// interaction. Gating is re-checked against fresh status, never assumed
// resolved, and the pipeline proceeds to payment or submission based on that
// fresh answer.
func (o *Orchestrator) ResolveEntitlement(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.running {
		return o.joinLocked(ctx)
	}
	if o.state != StateAwaitingEntitlement {
		o.mu.Unlock()
		return Result{}, ErrInvalidState
	}
	runCtx := o.beginAttemptLocked(ctx)
	o.mu.Unlock()

	o.quota.Invalidate()
	o.transition(EventEntitlementResolved)

	started := time.Now().UTC()
	snap := o.store.Snapshot()
	return o.runGate(runCtx, started, snap), nil
}

// ConfirmPayment resumes a pipeline suspended at AWAITING_PAYMENT after the
// payment provider reported completion.
func (o *Orchestrator) ConfirmPayment(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.running {
		return o.joinLocked(ctx)
	}
	if o.state != StateAwaitingPayment {
		o.mu.Unlock()
		return Result{}, ErrInvalidState
	}
	runCtx := o.beginAttemptLocked(ctx)
	o.mu.Unlock()

	o.transition(EventPaymentConfirmed)

	started := time.Now().UTC()
	snap := o.store.Snapshot()
	return o.doSubmit(runCtx, started, snap), nil
}

// CancelPayment handles an explicit payment cancellation: the handle is
// invalidated and the attempt fails as PAYMENT_REQUIRED, retryable.
func (o *Orchestrator) CancelPayment() (Result, error) {
	o.mu.Lock()
	if o.state != StateAwaitingPayment {
		o.mu.Unlock()
		return Result{}, ErrInvalidState
	}
	o.mu.Unlock()

	o.payments.Invalidate()
	o.transition(EventPaymentCancelled)

	serr := &models.SubmissionError{
		Kind:      models.ErrPaymentRequired,
		Message:   "payment was cancelled before completion",
		Retryable: true,
	}
	o.mu.Lock()
	o.lastErr = serr
	res := o.resultLocked()
	o.mu.Unlock()

	o.record(AttemptRecord{FinalState: StateFailed.String(), ErrorKind: serr.Kind, Message: serr.Message, StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()})
	return res, nil
}

// Cancel abandons the flow: the draft is discarded along with any in-flight
// work, and no background retry continues afterwards.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	if next, err := Next(o.state, EventCancelled); err == nil {
		o.state = next
	} else {
		o.state = StateIdle
	}
	o.lastErr = nil
	o.listingID = ""
	o.quotaState = nil
	o.mu.Unlock()

	o.payments.Invalidate()
	o.store.Reset(nil, "")
}

// Status returns the read-only observable for the UI layer.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		State:     o.state,
		Error:     o.lastErr,
		ListingID: o.listingID,
		Quota:     o.quotaState,
	}
	if o.payments != nil {
		st.Payment = o.payments.Current()
	}
	return st
}

// --- attempt driving ---

// beginAttemptLocked marks a new attempt generation and derives its context.
// Must be called with the mutex held.
func (o *Orchestrator) beginAttemptLocked(ctx context.Context) context.Context {
	o.running = true
	o.attempt++
	runCtx, cancel := context.WithCancel(ctx)
	o.cancelRun = cancel
	return runCtx
}

// joinLocked subscribes to the attempt already in flight. Must be called with
// the mutex held; it unlocks.
func (o *Orchestrator) joinLocked(ctx context.Context) (Result, error) {
	ch := make(chan Result, 1)
	o.waiters = append(o.waiters, ch)
	o.mu.Unlock()
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// run drives a full attempt from local validation onwards.
func (o *Orchestrator) run(ctx context.Context, start Event) Result {
	started := time.Now().UTC()
	o.transition(start)

	snap := o.store.Snapshot()

	// Locally-invalid drafts never generate network traffic.
	outcome := o.validator.ValidateLocal(snap)
	if !outcome.OverallValid {
		return o.fail(started, FromValidationOutcome(outcome))
	}
	o.transition(EventLocalPassed)

	remote, err := o.validator.ValidateRemote(ctx, snap, nil)
	if err != nil {
		return o.fail(started, Classify(err))
	}
	if !remote.OverallValid {
		return o.fail(started, FromValidationOutcome(remote))
	}
	o.transition(EventRemotePassed)

	return o.runGate(ctx, started, snap)
}

// runGate checks quota and routes to entitlement suspension, the payment
// detour, or straight to submission.
func (o *Orchestrator) runGate(ctx context.Context, started time.Time, snap models.DraftSnapshot) Result {
	status, err := o.quota.CheckQuota(ctx, o.accountID)
	if err != nil {
		return o.fail(started, Classify(err))
	}
	o.mu.Lock()
	o.quotaState = &status
	o.mu.Unlock()

	if gate.RequiresGating(status) {
		o.transition(EventGateBlocked)
		return o.pause()
	}

	if payment.NeedsPayment(snap) {
		if _, err := o.payments.AcquireHandle(ctx, snap); err != nil {
			return o.fail(started, &models.SubmissionError{
				Kind:      models.ErrPaymentRequired,
				Message:   "could not start payment, please try again",
				Retryable: true,
			})
		}
		o.transition(EventGateClearedPayment)
		return o.pause()
	}

	o.transition(EventGateCleared)
	return o.doSubmit(ctx, started, snap)
}

// doSubmit performs the final create/update call. NETWORK and INTERNAL
// failures are retried automatically under the shared policy before the
// failure surfaces for manual retry.
func (o *Orchestrator) doSubmit(ctx context.Context, started time.Time, snap models.DraftSnapshot) Result {
	paymentRef, _ := o.payments.Consume()

	var listingID string
	op := func(ctx context.Context) error {
		var opErr error
		if snap.IsEditing {
			listingID, opErr = o.submitter.UpdateListing(ctx, snap.ListingID, snap, paymentRef)
		} else {
			listingID, opErr = o.submitter.CreateListing(ctx, snap, paymentRef)
		}
		return opErr
	}
	err := o.policy.Do(ctx, op, func(err error) bool {
		kind := Classify(err).Kind
		return kind == models.ErrNetwork || kind == models.ErrInternal
	})
	if err != nil {
		// A handle issued for this attempt is spent; the next attempt must
		// acquire a fresh one.
		if paymentRef != "" {
			o.payments.Invalidate()
		}
		return o.fail(started, Classify(err))
	}

	o.mu.Lock()
	o.listingID = listingID
	o.mu.Unlock()
	o.transition(EventSubmitted)
	o.quota.Invalidate()

	res := o.finish()
	o.record(AttemptRecord{FinalState: StateSuccess.String(), ListingID: listingID, StartedAt: started, FinishedAt: time.Now().UTC()})
	return res
}

// fail concludes the attempt in FAILED carrying the classified error.
func (o *Orchestrator) fail(started time.Time, serr *models.SubmissionError) Result {
	o.transition(EventFailed)
	o.mu.Lock()
	// A concurrent Cancel may have reset the machine; never stamp an error
	// onto a state that is no longer FAILED.
	if o.state == StateFailed {
		o.lastErr = serr
	}
	o.mu.Unlock()

	res := o.finish()
	o.record(AttemptRecord{FinalState: StateFailed.String(), ErrorKind: serr.Kind, Message: serr.Message, StartedAt: started, FinishedAt: time.Now().UTC()})
	return res
}

// pause settles the attempt at a suspension point without recording it as
// concluded; an external interaction re-enters the pipeline later.
func (o *Orchestrator) pause() Result {
	return o.finish()
}

// finish releases the single-flight guard and hands the settled result to
// every joined caller.
func (o *Orchestrator) finish() Result {
	o.mu.Lock()
	o.running = false
	o.cancelRun = nil
	res := o.resultLocked()
	waiters := o.waiters
	o.waiters = nil
	o.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
	return res
}

func (o *Orchestrator) resultLocked() Result {
	return Result{State: o.state, ListingID: o.listingID, Err: o.lastErr}
}

// transition applies an event through the transition table. Illegal internal
// transitions indicate a bug and are logged, not silently applied.
func (o *Orchestrator) transition(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next, err := Next(o.state, ev)
	if err != nil {
		log.Printf("WARN: submission pipeline %s: %v", o.sessionID, err)
		return
	}
	o.state = next
	if next != StateFailed {
		o.lastErr = nil
	}
}

// record writes the attempt to the journal without blocking the pipeline.
func (o *Orchestrator) record(rec AttemptRecord) {
	if o.journal == nil {
		return
	}
	rec.SessionID = o.sessionID
	rec.AccountID = o.accountID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.journal.RecordAttempt(ctx, rec); err != nil {
			log.Printf("WARN: failed to journal submission attempt for session %s: %v", o.sessionID, err)
		}
	}()
}
