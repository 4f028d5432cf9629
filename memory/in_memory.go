package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// InMemoryStore is a process-local MemoryStore. Memories are kept per user in
// insertion order; adding a memory whose content already exists for the user
// is a no-op.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[string][]core.Memory // userID -> memories
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memories: make(map[string][]core.Memory)}
}

// GetUserMemories returns a copy of the user's memories, oldest first.
func (m *InMemoryStore) GetUserMemories(_ context.Context, userID string) ([]core.Memory, error) {
	if userID == "" {
		return nil, core.ErrEmptyID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.Memory, 0, len(m.memories[userID]))
	for _, mem := range m.memories[userID] {
		mem.Topics = slices.Clone(mem.Topics)
		out = append(out, mem)
	}
	return out, nil
}

// AddMemory stores mem, assigning an ID and creation time when missing.
func (m *InMemoryStore) AddMemory(_ context.Context, mem core.Memory) error {
	if mem.UserID == "" {
		return core.ErrEmptyID
	}

	mem = normalize(mem)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.memories[mem.UserID] {
		if SameContent(existing.Content, mem.Content) {
			return nil
		}
	}
	m.memories[mem.UserID] = append(m.memories[mem.UserID], mem)
	return nil
}

// Clear forgets everything stored for userID.
func (m *InMemoryStore) Clear(_ context.Context, userID string) error {
	if userID == "" {
		return core.ErrEmptyID
	}

	m.mu.Lock()
	delete(m.memories, userID)
	m.mu.Unlock()
	return nil
}

// SameContent reports whether two memory texts are equal ignoring case and
// surrounding whitespace.
func SameContent(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func normalize(mem core.Memory) core.Memory {
	if mem.ID == "" {
		mem.ID = core.NewID()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	mem.Content = strings.TrimSpace(mem.Content)
	mem.Topics = slices.Clone(mem.Topics)
	return mem
}
