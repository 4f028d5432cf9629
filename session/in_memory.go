package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// InMemoryStore is a volatile SessionStore implementation storing session
// records in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Records are cloned on the way
// in and out to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.SessionRecord
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.SessionRecord)}
}

// Read returns a clone of the stored record or core.ErrNotFound.
func (s *InMemoryStore) Read(_ context.Context, sessionID string) (*core.SessionRecord, error) {
	if sessionID == "" {
		return nil, core.ErrEmptyID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, core.ErrNotFound
	}

	return rec.Clone(), nil
}

// Upsert stores a clone of rec, replacing any earlier version.
func (s *InMemoryStore) Upsert(_ context.Context, rec *core.SessionRecord) error {
	if rec.ID == "" {
		return core.ErrEmptyID
	}

	snap := rec.Clone()
	snap.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[rec.ID]; ok {
		snap.CreatedAt = prev.CreatedAt
	}
	s.sessions[rec.ID] = snap

	return nil
}

// Delete removes a record. Unknown ids yield core.ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return core.ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return core.ErrNotFound
	}
	delete(s.sessions, sessionID)

	return nil
}

// ListSessions returns clones of the records matching filter, oldest first.
func (s *InMemoryStore) ListSessions(_ context.Context, filter core.ListFilter) ([]*core.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		if filter.Match(rec) {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)

	return out, nil
}

func sortRecords(recs []*core.SessionRecord) {
	slices.SortFunc(recs, func(a, b *core.SessionRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
