package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atef1995/sayarat-sub000/internal/draft"
	"github.com/atef1995/sayarat-sub000/internal/gate"
	"github.com/atef1995/sayarat-sub000/internal/models"
	"github.com/atef1995/sayarat-sub000/internal/payment"
	"github.com/atef1995/sayarat-sub000/internal/pipeline"
	"github.com/atef1995/sayarat-sub000/internal/retry"
	"github.com/atef1995/sayarat-sub000/internal/validation"
)

// ErrForbidden is returned when a session belongs to another account.
var ErrForbidden = fmt.Errorf("session belongs to another account")

// Session binds one draft to its validation service and submission pipeline.
type Session struct {
	ID        string
	AccountID string

	Store      *draft.Store
	Validation *validation.Service
	Pipeline   *pipeline.Orchestrator

	mu         sync.Mutex
	lastActive time.Time
	remote     *models.ValidationOutcome
	remoteGen  uint64
}

// acceptRemote receives debounced remote validation results. Results for a
// superseded draft generation are discarded: the answer no longer describes
// what the user is looking at.
func (s *Session) acceptRemote(res validation.RemoteResult) {
	if res.Generation != s.Store.Generation() {
		return
	}
	if res.Err != nil {
		// Advisory validation is best effort; submission re-validates anyway.
		log.Printf("WARN: remote validation failed for session %s: %v", s.ID, res.Err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome := res.Outcome
	s.remote = &outcome
	s.remoteGen = res.Generation
}

// RemoteOutcome returns the latest accepted remote validation result and the
// draft generation it belongs to.
func (s *Session) RemoteOutcome() (models.ValidationOutcome, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return models.ValidationOutcome{}, 0, false
	}
	return *s.remote, s.remoteGen, true
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// LastActive returns the time of the session's last interaction.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Manager owns the live submission sessions and builds the collaborator
// graph for each one.
type Manager struct {
	repo         IRepository
	remote       validation.IRemoteValidator
	entitlements gate.IEntitlementClient
	intents      payment.IIntentClient
	submitter    pipeline.ISubmitter
	journal      pipeline.IJournal
	policy       retry.Policy
	window       time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. repo and journal may be nil.
func NewManager(repo IRepository, remote validation.IRemoteValidator, entitlements gate.IEntitlementClient, intents payment.IIntentClient, submitter pipeline.ISubmitter, journal pipeline.IJournal, policy retry.Policy, window time.Duration) *Manager {
	return &Manager{
		repo:         repo,
		remote:       remote,
		entitlements: entitlements,
		intents:      intents,
		submitter:    submitter,
		journal:      journal,
		policy:       policy,
		window:       window,
		sessions:     make(map[string]*Session),
	}
}

func (m *Manager) build(id, accountID string, store *draft.Store) *Session {
	sess := &Session{
		ID:         id,
		AccountID:  accountID,
		Store:      store,
		Validation: validation.NewService(m.remote, m.window),
		lastActive: time.Now().UTC(),
	}
	sess.Pipeline = pipeline.NewOrchestrator(
		id,
		accountID,
		store,
		sess.Validation,
		gate.NewQuotaGate(m.entitlements, m.policy),
		payment.NewCoordinator(m.intents),
		m.submitter,
		m.journal,
		m.policy,
	)
	return sess
}

// Create starts a new session. A non-empty listingID puts the draft into
// editing mode over that listing's current field values.
func (m *Manager) Create(ctx context.Context, accountID string, initial map[string]interface{}, listingID string) (*Session, error) {
	var store *draft.Store
	if listingID != "" {
		store = draft.NewEditStore(listingID, initial)
	} else {
		store = draft.NewStore()
		if len(initial) > 0 {
			store.Reset(initial, "")
		}
	}

	sess := m.build(uuid.NewString(), accountID, store)
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.persist(ctx, sess)
	return sess, nil
}

// Get returns the session by ID, rebuilding it from the repository if the
// process restarted since it was created. A rebuilt session keeps its draft
// but restarts its pipeline from idle.
func (m *Manager) Get(ctx context.Context, id, accountID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		if sess.AccountID != accountID {
			return nil, ErrForbidden
		}
		sess.touch()
		return sess, nil
	}

	if m.repo == nil {
		return nil, ErrNotFound
	}
	rec, err := m.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.AccountID != accountID {
		return nil, ErrForbidden
	}

	var store *draft.Store
	if rec.IsEditing {
		store = draft.NewEditStore(rec.ListingID, rec.Fields)
	} else {
		store = draft.NewStore()
		if len(rec.Fields) > 0 {
			store.Reset(rec.Fields, "")
		}
	}
	sess = m.build(rec.ID, rec.AccountID, store)

	m.mu.Lock()
	// Another request may have rebuilt it concurrently; first one wins.
	if existing, ok := m.sessions[id]; ok {
		sess = existing
	} else {
		m.sessions[id] = sess
	}
	m.mu.Unlock()
	sess.touch()
	return sess, nil
}

// UpdateField applies one field edit, returning the new draft generation and
// the local validation picture. Remote validation is scheduled behind the
// debounce window and lands asynchronously via Session.RemoteOutcome.
func (m *Manager) UpdateField(ctx context.Context, sess *Session, field string, value interface{}) (uint64, models.ValidationOutcome) {
	gen := sess.Store.SetField(field, value)
	snap := sess.Store.Snapshot()
	outcome := sess.Validation.ValidateLocal(snap)
	sess.Validation.ScheduleRemote([]string{field}, snap, sess.acceptRemote)
	sess.touch()
	m.persist(ctx, sess)
	return gen, outcome
}

// Drop cancels and removes a session.
func (m *Manager) Drop(ctx context.Context, id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		sess.Validation.CancelPending()
		sess.Pipeline.Cancel()
	}
	if m.repo != nil {
		if err := m.repo.Delete(ctx, id); err != nil {
			log.Printf("WARN: failed to delete session %s: %v", id, err)
		}
	}
}

// Persist saves the session's current draft and pipeline position.
func (m *Manager) Persist(ctx context.Context, sess *Session) {
	m.persist(ctx, sess)
}

func (m *Manager) persist(ctx context.Context, sess *Session) {
	if m.repo == nil {
		return
	}
	snap := sess.Store.Snapshot()
	rec := Record{
		ID:         sess.ID,
		AccountID:  sess.AccountID,
		Fields:     snap.Fields,
		IsEditing:  snap.IsEditing,
		ListingID:  snap.ListingID,
		State:      sess.Pipeline.Status().State.String(),
		LastActive: sess.LastActive(),
	}
	if err := m.repo.Save(ctx, rec); err != nil {
		log.Printf("WARN: failed to persist session %s: %v", sess.ID, err)
	}
}

// Sweep drops in-memory sessions idle for longer than maxAge. Persisted
// records expire on their own Redis TTL.
func (m *Manager) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	var stale []*Session
	for id, sess := range m.sessions {
		if sess.LastActive().Before(cutoff) {
			stale = append(stale, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range stale {
		sess.Validation.CancelPending()
	}
	return len(stale)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
