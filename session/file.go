package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/hupe1980/agentrun/core"
)

// FileStore persists one JSON document per session in a directory. Writes go
// through a temp file and rename, so a crash never leaves a torn record.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create session directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionID string) (string, error) {
	if sessionID == "" {
		return "", core.ErrEmptyID
	}
	if strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

// Read loads a record or returns core.ErrNotFound.
func (s *FileStore) Read(_ context.Context, sessionID string) (*core.SessionRecord, error) {
	p, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readRecord(p)
}

func readRecord(p string) (*core.SessionRecord, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	var rec core.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", filepath.Base(p), err)
	}
	if rec.State == nil {
		rec.State = core.NewStateBag()
	}

	return &rec, nil
}

// Upsert writes rec atomically, keeping the creation time of an earlier version.
func (s *FileStore) Upsert(_ context.Context, rec *core.SessionRecord) error {
	p, err := s.path(rec.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := rec.Clone()
	snap.UpdatedAt = time.Now().UTC()
	if prev, err := readRecord(p); err == nil {
		snap.CreatedAt = prev.CreatedAt
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.ID, err)
	}

	return atomic.WriteFile(p, bytes.NewReader(data))
}

// Delete removes a record file.
func (s *FileStore) Delete(_ context.Context, sessionID string) error {
	p, err := s.path(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.ErrNotFound
		}
		return err
	}

	return nil
}

// ListSessions decodes every record in the directory and filters them.
func (s *FileStore) ListSessions(_ context.Context, filter core.ListFilter) ([]*core.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var out []*core.SessionRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := readRecord(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	sortRecords(out)

	return out, nil
}
