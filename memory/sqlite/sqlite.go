// Package sqlite provides a persistent core.MemoryStore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/sqliteutil"
)

var migrations = []sqliteutil.Migration{
	{
		Version: 1,
		Name:    "memories",
		UpSQL: `CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			content_key TEXT NOT NULL,
			topics TEXT NOT NULL DEFAULT '[]',
			run_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (user_id, content_key)
		)`,
	},
}

// Store is a SQLite memory store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path.
func New(path string) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	if err := sqliteutil.Migrate(context.Background(), db, migrations); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// GetUserMemories returns the user's memories, oldest first.
func (s *Store) GetUserMemories(ctx context.Context, userID string) ([]core.Memory, error) {
	if userID == "" {
		return nil, core.ErrEmptyID
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, content, topics, run_id, created_at FROM memories WHERE user_id = ? ORDER BY created_at, rowid", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Memory
	for rows.Next() {
		var (
			m         core.Memory
			topics    string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &topics, &m.RunID, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(topics), &m.Topics); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

// AddMemory stores m. A memory whose content already exists for the user is
// ignored.
func (s *Store) AddMemory(ctx context.Context, m core.Memory) error {
	if m.UserID == "" {
		return core.ErrEmptyID
	}
	if m.ID == "" {
		m.ID = core.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Content = strings.TrimSpace(m.Content)

	topics, err := json.Marshal(m.Topics)
	if err != nil {
		return err
	}
	if m.Topics == nil {
		topics = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, content, content_key, topics, run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, content_key) DO NOTHING`,
		m.ID, m.UserID, m.Content, strings.ToLower(m.Content), string(topics), m.RunID,
		m.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Clear deletes every memory of userID.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrEmptyID
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE user_id = ?", userID)
	return err
}
