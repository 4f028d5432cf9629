// Package sqlite provides a core.SessionStore backed by a SQLite database
// (pure Go driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/sqliteutil"
)

var migrations = []sqliteutil.Migration{
	{
		Version: 1,
		Name:    "sessions",
		UpSQL: `CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '{}',
			team_state TEXT,
			runs TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	},
	{
		Version: 2,
		Name:    "sessions_user_entity_index",
		UpSQL:   `CREATE INDEX IF NOT EXISTS idx_sessions_user_entity ON sessions (user_id, entity_id)`,
	},
}

// Store is a SQLite session store. State bags, run records and metadata are
// stored as JSON columns.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and migrates it.
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

const selectColumns = "id, user_id, entity_id, state, team_state, runs, metadata, created_at, updated_at"

// Read loads a record or returns core.ErrNotFound.
func (s *Store) Read(ctx context.Context, sessionID string) (*core.SessionRecord, error) {
	if sessionID == "" {
		return nil, core.ErrEmptyID
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM sessions WHERE id = ?", sessionID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return rec, nil
}

// Upsert inserts or replaces a record; created_at of an existing row is kept.
func (s *Store) Upsert(ctx context.Context, rec *core.SessionRecord) error {
	if rec.ID == "" {
		return core.ErrEmptyID
	}

	state, err := marshal(rec.State, "{}")
	if err != nil {
		return err
	}
	runs, err := marshal(rec.Runs, "[]")
	if err != nil {
		return err
	}
	metadata, err := marshal(rec.Metadata, "{}")
	if err != nil {
		return err
	}

	var teamState any
	if rec.TeamState != nil {
		ts, err := marshal(rec.TeamState, "{}")
		if err != nil {
			return err
		}
		teamState = ts
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, entity_id, state, team_state, runs, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id = excluded.user_id,
		   entity_id = excluded.entity_id,
		   state = excluded.state,
		   team_state = excluded.team_state,
		   runs = excluded.runs,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.UserID, rec.EntityID, state, teamState, runs, metadata,
		createdAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return core.ErrEmptyID
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return core.ErrNotFound
	}

	return nil
}

// ListSessions returns records matching filter, oldest first.
func (s *Store) ListSessions(ctx context.Context, filter core.ListFilter) ([]*core.SessionRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	query := "SELECT " + selectColumns + " FROM sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*core.SessionRecord, error) {
	var (
		rec                   core.SessionRecord
		state, runs, metadata string
		teamState             sql.NullString
		createdAt, updatedAt  string
	)

	if err := row.Scan(&rec.ID, &rec.UserID, &rec.EntityID, &state, &teamState, &runs, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rec.State = core.NewStateBag()
	if err := json.Unmarshal([]byte(state), rec.State); err != nil {
		return nil, fmt.Errorf("decode state of session %s: %w", rec.ID, err)
	}
	if teamState.Valid {
		rec.TeamState = core.NewStateBag()
		if err := json.Unmarshal([]byte(teamState.String), rec.TeamState); err != nil {
			return nil, fmt.Errorf("decode team state of session %s: %w", rec.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(runs), &rec.Runs); err != nil {
		return nil, fmt.Errorf("decode runs of session %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of session %s: %w", rec.ID, err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}

	return &rec, nil
}

func marshal(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
