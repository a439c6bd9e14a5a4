package connection

import (
	"context"
	"sync"
)

// Gate is a write-once readiness signal any number of goroutines can
// wait on.
type Gate struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewGate returns an unresolved gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Resolve records the outcome. Only the first call has an effect.
func (g *Gate) Resolve(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// Wait blocks until the gate is resolved or ctx ends and returns the
// recorded outcome.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolved reports whether Resolve has been called.
func (g *Gate) Resolved() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}
