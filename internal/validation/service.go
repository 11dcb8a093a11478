package validation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atef1995/sayarat-sub000/internal/models"
)

// DefaultDebounceWindow is the quiet period after the last field change
// before the remote check fires.
const DefaultDebounceWindow = 400 * time.Millisecond

// IRemoteValidator is the remote side of the field validation contract,
// implemented by the marketplace client.
type IRemoteValidator interface {
	ValidateStep(ctx context.Context, step int, fields map[string]interface{}) (models.ValidationOutcome, error)
}

// RemoteResult is one settled remote validation pass, tagged with the draft
// generation it was issued under. Receivers must compare the generation
// against the store's current one and discard stale results.
type RemoteResult struct {
	Generation uint64
	Outcome    models.ValidationOutcome
	Err        error // transport failure; advisory, never blocks editing
}

// Service combines the synchronous local rules with the debounced remote
// check. At most one remote call is in flight: scheduling a newer check
// cancels the pending timer and supersedes the in-flight request.
type Service struct {
	remote IRemoteValidator
	window time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	cancel   context.CancelFunc
	pending  map[string]struct{}
	lastSnap models.DraftSnapshot
}

// NewService creates a validation service. A non-positive window falls back
// to the default.
func NewService(remote IRemoteValidator, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Service{
		remote:  remote,
		window:  window,
		pending: make(map[string]struct{}),
	}
}

// ValidateLocal runs the local rules. Pure and synchronous.
func (s *Service) ValidateLocal(snap models.DraftSnapshot) models.ValidationOutcome {
	return ValidateLocal(snap)
}

// ScheduleRemote queues a debounced remote check of the changed fields.
// Changed fields accumulate across the quiet window; each call restarts the
// window and supersedes any in-flight request for an older generation. The
// deliver callback runs on a background goroutine once the check settles.
func (s *Service) ScheduleRemote(changed []string, snap models.DraftSnapshot, deliver func(RemoteResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range changed {
		s.pending[f] = struct{}{}
	}
	s.lastSnap = snap

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.window, func() {
		s.fire(deliver)
	})
}

// fire runs when a debounce window settles: it takes the accumulated field
// set, cancels any prior in-flight request and issues a fresh one.
func (s *Service) fire(deliver func(RemoteResult)) {
	s.mu.Lock()
	fields := make([]string, 0, len(s.pending))
	for f := range s.pending {
		fields = append(fields, f)
	}
	s.pending = make(map[string]struct{})
	snap := s.lastSnap

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	outcome, err := s.validateRemote(ctx, snap, fields)
	if ctx.Err() != nil {
		// Superseded by a newer window; the fresh request reports instead.
		return
	}
	deliver(RemoteResult{Generation: snap.Generation, Outcome: outcome, Err: err})
}

// ValidateRemote runs the remote check immediately, bypassing the debounce.
// The orchestrator uses this at submit time with the full field set.
func (s *Service) ValidateRemote(ctx context.Context, snap models.DraftSnapshot, changed []string) (models.ValidationOutcome, error) {
	return s.validateRemote(ctx, snap, changed)
}

func (s *Service) validateRemote(ctx context.Context, snap models.DraftSnapshot, changed []string) (models.ValidationOutcome, error) {
	merged := models.NewValidationOutcome()
	for step, fields := range groupByStep(snap, changed) {
		outcome, err := s.remote.ValidateStep(ctx, step, fields)
		if err != nil {
			return models.ValidationOutcome{}, err
		}
		merged.Merge(outcome)
	}
	return merged, nil
}

// CancelPending drops the queued debounce window and supersedes any in-flight
// request. Used on draft abandonment.
func (s *Service) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pending = make(map[string]struct{})
}

// groupByStep buckets the changed fields by their owning form step, resolving
// each field's current value from the snapshot. Unknown fields are skipped.
func groupByStep(snap models.DraftSnapshot, changed []string) map[int]map[string]interface{} {
	if len(changed) == 0 {
		changed = make([]string, 0, len(snap.Fields))
		for name := range snap.Fields {
			changed = append(changed, name)
		}
		sort.Strings(changed)
	}
	groups := make(map[int]map[string]interface{})
	for _, name := range changed {
		step := models.StepForField(name)
		if step == 0 {
			continue
		}
		if groups[step] == nil {
			groups[step] = make(map[string]interface{})
		}
		groups[step][name] = snap.Fields[name]
	}
	return groups
}
