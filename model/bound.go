package model

import (
	"context"
	"sync"
)

// StatefulClient is a provider client that keeps the bound tool set on the
// client instead of taking it per call. Generate uses whatever was bound last
// and ignores Request.Tools.
type StatefulClient interface {
	BindTools(tools []ToolDefinition)
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)
	Info() Info
}

// Bound adapts a StatefulClient to Model. Every call binds the request's
// tools, generates, drains and unbinds while holding an exclusive lock, so
// concurrent agents sharing one client never observe each other's tools.
//
// The openai and anthropic adapters take tools per request and are used
// directly. Bound is for clients that follow a bind-then-generate API, such
// as wrappers around SDKs with a BindTools method.
type Bound struct {
	mu     sync.Mutex
	client StatefulClient
}

// NewBound wraps client.
func NewBound(client StatefulClient) *Bound {
	return &Bound{client: client}
}

// Generate implements Model.
func (b *Bound) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		b.mu.Lock()
		defer b.mu.Unlock()

		b.client.BindTools(req.Tools)
		defer b.client.BindTools(nil)

		respCh, innerErr := b.client.Generate(ctx, req)
		for resp := range respCh {
			out <- resp
		}
		if err := <-innerErr; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// Info implements Model.
func (b *Bound) Info() Info { return b.client.Info() }
