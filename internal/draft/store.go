package draft

import (
	"sync"

	"github.com/atef1995/sayarat-sub000/internal/models"
)

// Store holds the in-progress listing's field values and dirty tracking. It is
// the single source of truth the other pipeline components read and write.
// The store never performs I/O; persistence is layered on top by the session
// repository.
type Store struct {
	mu         sync.Mutex
	fields     map[string]interface{}
	dirty      bool
	editing    bool
	listingID  string
	generation uint64
}

// NewStore creates a blank store for a fresh listing.
func NewStore() *Store {
	return &Store{fields: make(map[string]interface{})}
}

// NewEditStore creates a store pre-filled from an existing listing. The store
// starts pristine; only subsequent SetField calls mark it dirty.
func NewEditStore(listingID string, initial map[string]interface{}) *Store {
	s := NewStore()
	s.Reset(initial, listingID)
	return s
}

// SetField records a field change, marks the draft dirty and bumps the
// generation counter. The returned generation tags any asynchronous work
// issued for this change so stale results can be discarded.
func (s *Store) SetField(name string, value interface{}) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.fields, name)
	} else {
		s.fields[name] = value
	}
	s.dirty = true
	s.generation++
	return s.generation
}

// Snapshot returns an immutable copy of the draft for validation or
// submission, tagged with the current generation.
func (s *Store) Snapshot() models.DraftSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := make(map[string]interface{}, len(s.fields))
	for k, v := range s.fields {
		fields[k] = v
	}
	return models.DraftSnapshot{
		Fields:     fields,
		IsEditing:  s.editing,
		ListingID:  s.listingID,
		Generation: s.generation,
	}
}

// Reset clears the draft to blank, or to a provided initial state when editing
// an existing listing. The generation is bumped so any in-flight results for
// the old draft are discarded on arrival.
func (s *Store) Reset(initial map[string]interface{}, listingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = make(map[string]interface{}, len(initial))
	for k, v := range initial {
		s.fields[k] = v
	}
	s.dirty = false
	s.editing = listingID != ""
	s.listingID = listingID
	s.generation++
}

// Generation returns the current generation counter.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// IsDirty reports whether any field changed since load or the last Reset.
func (s *Store) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// IsEditing reports whether the draft updates an existing listing.
func (s *Store) IsEditing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}
