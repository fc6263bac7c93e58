// Package promise implements a single-shot completion cell.
//
// A Cell is resolved at most once; later resolutions are ignored. A cell can be tied
// to a context so that cancellation resolves it with a chosen value instead of
// leaving waiters pending.
package promise

import (
	"context"
	"sync"

	"github.com/samber/mo"
)

// Cell holds one eventually-known value of type T.
type Cell[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	resolved bool
	stops    []func() bool
}

// New returns an unresolved cell.
func New[T any]() *Cell[T] {
	return &Cell[T]{done: make(chan struct{})}
}

// Resolve stores v and wakes every waiter. It reports whether this call won;
// a cell that is already resolved keeps its first value.
func (c *Cell[T]) Resolve(v T) bool {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return false
	}

	c.value = v
	c.resolved = true
	stops := c.stops
	c.stops = nil
	close(c.done)
	c.mu.Unlock()

	for _, stop := range stops {
		stop()
	}

	return true
}

// ResolveOnCancel arranges for the cell to resolve with v once ctx is done.
// Nothing happens if the cell resolves first.
func (c *Cell[T]) ResolveOnCancel(ctx context.Context, v T) {
	if ctx.Done() == nil {
		return
	}

	stop := context.AfterFunc(ctx, func() { c.Resolve(v) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		stop()
		return
	}
	c.stops = append(c.stops, stop)
}

// Done is closed once the cell is resolved.
func (c *Cell[T]) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the cell resolves or ctx is done, whichever happens first.
// Abandoning the wait does not resolve the cell.
func (c *Cell[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Await blocks until the cell resolves.
func (c *Cell[T]) Await() T {
	<-c.done
	return c.value
}

// Peek returns the value if the cell is already resolved.
func (c *Cell[T]) Peek() mo.Option[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.resolved {
		return mo.None[T]()
	}
	return mo.Some(c.value)
}
