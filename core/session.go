package core

import (
	"context"
	"maps"
	"time"
)

// SessionRecord is the persisted form of a session: the local state bag of
// the entity that ran in it, the team-shared bag when the entity is a team,
// and the records of the runs executed so far.
type SessionRecord struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	EntityID  string            `json:"entity_id,omitempty"`
	State     *StateBag         `json:"state"`
	TeamState *StateBag         `json:"team_state,omitempty"`
	Runs      []*RunRecord      `json:"runs,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSessionRecord returns an empty record.
func NewSessionRecord(id, userID, entityID string) *SessionRecord {
	now := time.Now().UTC()
	return &SessionRecord{
		ID:        id,
		UserID:    userID,
		EntityID:  entityID,
		State:     NewStateBag(),
		Metadata:  map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PutRun stores a snapshot of rec, replacing an earlier snapshot of the same run.
func (s *SessionRecord) PutRun(rec *RunRecord) {
	snap := rec.Clone()
	for i, r := range s.Runs {
		if r.ID == rec.ID {
			s.Runs[i] = snap
			return
		}
	}
	s.Runs = append(s.Runs, snap)
}

// Run returns the stored snapshot of run id.
func (s *SessionRecord) Run(id string) (*RunRecord, bool) {
	for _, r := range s.Runs {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Clone deep-copies the record.
func (s *SessionRecord) Clone() *SessionRecord {
	c := *s
	if s.State != nil {
		c.State = s.State.Clone()
	}
	if s.TeamState != nil {
		c.TeamState = s.TeamState.Clone()
	}
	if s.Runs != nil {
		c.Runs = make([]*RunRecord, len(s.Runs))
		for i, r := range s.Runs {
			c.Runs[i] = r.Clone()
		}
	}
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}

// ListFilter narrows ListSessions. Empty fields match everything.
type ListFilter struct {
	UserID   string
	EntityID string
}

// Match reports whether rec satisfies the filter.
func (f ListFilter) Match(rec *SessionRecord) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.EntityID != "" && rec.EntityID != f.EntityID {
		return false
	}
	return true
}

// SessionStore persists session records. Read returns ErrNotFound for
// unknown ids. The engine reads before the first turn of a session and
// upserts after every turn; it never deletes on its own.
type SessionStore interface {
	Read(ctx context.Context, sessionID string) (*SessionRecord, error)
	Upsert(ctx context.Context, rec *SessionRecord) error
	Delete(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, filter ListFilter) ([]*SessionRecord, error)
}
