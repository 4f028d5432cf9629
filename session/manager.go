package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Logger logging.Logger
}

// Manager loads, reconciles and saves session records around each turn.
//
// Every record it reads or writes is also cached in process. When the store
// fails, the manager logs a warning and keeps working from the cache, so a
// storage outage degrades to in-memory sessions instead of failing turns.
type Manager struct {
	store  core.SessionStore
	logger logging.Logger

	mu    sync.Mutex
	cache map[string]*core.SessionRecord
}

// NewManager creates a Manager over store. A nil store keeps sessions in
// memory only.
func NewManager(store core.SessionStore, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if store == nil {
		store = NewInMemoryStore()
	}

	return &Manager{
		store:  store,
		logger: opts.Logger,
		cache:  make(map[string]*core.SessionRecord),
	}
}

// Store returns the underlying session store.
func (m *Manager) Store() core.SessionStore { return m.store }

// Load returns a copy of the record for sessionID, creating an empty one
// when the session has never been saved.
func (m *Manager) Load(ctx context.Context, sessionID, userID, entityID string) (*core.SessionRecord, error) {
	if sessionID == "" {
		return nil, core.ErrEmptyID
	}

	rec, err := m.store.Read(ctx, sessionID)
	switch {
	case err == nil:
		m.remember(rec)
		return rec.Clone(), nil
	case errors.Is(err, core.ErrNotFound):
	default:
		m.warn(&core.StorageUnavailableError{Op: "read", SessionID: sessionID, Err: err})
	}

	if cached, ok := m.cached(sessionID); ok {
		return cached, nil
	}

	return core.NewSessionRecord(sessionID, userID, entityID), nil
}

// Activate loads sessionID and reconciles the given bags with what was
// stored for it. local and shared keep their identity; shared may be nil
// for targets outside a team. The loaded record is returned.
func (m *Manager) Activate(ctx context.Context, sessionID, userID, entityID string, local, shared *core.StateBag) (*core.SessionRecord, error) {
	rec, err := m.Load(ctx, sessionID, userID, entityID)
	if err != nil {
		return nil, err
	}

	if rec.UserID == "" {
		rec.UserID = userID
	}
	if rec.EntityID == "" {
		rec.EntityID = entityID
	}

	activate(local, rec.State, sessionID, rec.UserID)
	if shared != nil {
		activate(shared, rec.TeamState, sessionID, rec.UserID)
	}

	return rec, nil
}

func activate(bag, loaded *core.StateBag, sessionID, userID string) {
	if bag == nil {
		return
	}
	merged := Reconcile(bag, loaded, sessionID)
	if userID != "" {
		merged.SetReserved(core.StateKeyUserID, userID)
	}
	bag.ReplaceWith(merged)
}

// SaveRun stores a snapshot of run and the current bags in sess and saves it.
func (m *Manager) SaveRun(ctx context.Context, sess *core.SessionRecord, run *core.RunRecord, local, shared *core.StateBag) error {
	sess.PutRun(run)
	if local != nil {
		sess.State = local.Clone()
	}
	if shared != nil {
		sess.TeamState = shared.Clone()
	}
	if sess.UserID == "" {
		sess.UserID = run.UserID
	}

	return m.Save(ctx, sess)
}

// Save upserts rec. Storage failures are logged and absorbed; only invalid
// records return an error.
func (m *Manager) Save(ctx context.Context, rec *core.SessionRecord) error {
	if rec.ID == "" {
		return core.ErrEmptyID
	}

	rec.UpdatedAt = time.Now().UTC()
	m.remember(rec)

	if err := m.store.Upsert(ctx, rec); err != nil {
		m.warn(&core.StorageUnavailableError{Op: "upsert", SessionID: rec.ID, Err: err})
	}

	return nil
}

// Delete removes the session from the store and the cache.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	_, cached := m.cache[sessionID]
	delete(m.cache, sessionID)
	m.mu.Unlock()

	err := m.store.Delete(ctx, sessionID)
	if cached && errors.Is(err, core.ErrNotFound) {
		return nil
	}
	return err
}

// List returns the stored sessions matching filter.
func (m *Manager) List(ctx context.Context, filter core.ListFilter) ([]*core.SessionRecord, error) {
	return m.store.ListSessions(ctx, filter)
}

func (m *Manager) remember(rec *core.SessionRecord) {
	m.mu.Lock()
	m.cache[rec.ID] = rec.Clone()
	m.mu.Unlock()
}

func (m *Manager) cached(sessionID string) (*core.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.cache[sessionID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (m *Manager) warn(err *core.StorageUnavailableError) {
	m.logger.Warn("session.store.unavailable",
		"op", err.Op,
		"session_id", err.SessionID,
		"error", err.Err,
	)
}
