package service

import (
	"context"
	"sync"
)

// InitGate runs an initializer once per process lifetime.
//
// The first caller of Enter runs init; callers arriving while it runs wait
// for it to finish. The outcome is assigned once and never changes.
type InitGate struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

func NewInitGate() *InitGate {
	return &InitGate{}
}

// Enter runs init if no caller has yet, or waits for the running one.
// fresh is true when this call ran or waited for the initializer, and false
// when initialization had already finished before the call.
func (g *InitGate) Enter(ctx context.Context, init func(context.Context) error) (fresh bool, err error) {
	g.mu.Lock()
	if g.done == nil {
		g.done = make(chan struct{})
		g.mu.Unlock()

		g.err = init(ctx)
		close(g.done)
		return true, g.err
	}
	done := g.done
	g.mu.Unlock()

	select {
	case <-done:
		// Completed before we got here: nothing fresh about it.
		return false, g.err
	default:
	}

	select {
	case <-done:
		return true, g.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Started reports whether any caller has entered the gate.
func (g *InitGate) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done != nil
}

// Finished reports whether the initializer has returned.
func (g *InitGate) Finished() bool {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}
