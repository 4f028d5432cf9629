package runner

import (
	"context"

	"github.com/hupe1980/agentrun/core"
)

// emitter delivers events of a streaming call to its consumer. Sends block
// while the buffer is full and give up once the caller's context is done.
type emitter struct {
	ctx context.Context
	ch  chan<- core.Event
}

func newEmitter(ctx context.Context, ch chan<- core.Event) *emitter {
	return &emitter{ctx: ctx, ch: ch}
}

func (e *emitter) send(ev core.Event) {
	if e == nil {
		return
	}

	select {
	case e.ch <- ev:
		return
	default:
	}

	select {
	case e.ch <- ev:
	case <-e.ctx.Done():
	}
}
