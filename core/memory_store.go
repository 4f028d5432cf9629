package core

import (
	"context"
	"time"
)

// Memory is a long-term fact remembered about a user.
type Memory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Topics    []string  `json:"topics,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStore is the long-term memory contract. The engine calls it
// opportunistically after a turn; failures are logged and never fail the run.
type MemoryStore interface {
	GetUserMemories(ctx context.Context, userID string) ([]Memory, error)
	AddMemory(ctx context.Context, m Memory) error
	Clear(ctx context.Context, userID string) error
}
