package player

import (
	"context"
	"sync"

	"github.com/playbridge/playbridge/internal/promise"
	"github.com/samber/mo"
)

// LoadCoordinator turns a source submission into exactly one VideoLoadStatus.
//
// At most one load is pending per coordinator. Beginning a new load resolves the
// previous one to LoadTimeout; closing the coordinator resolves it to LoadFailed.
type LoadCoordinator struct {
	mu      sync.Mutex
	pending *promise.Cell[VideoLoadStatus]
	last    mo.Option[VideoLoadStatus]
	closed  bool
}

// NewLoadCoordinator returns an idle coordinator.
func NewLoadCoordinator() *LoadCoordinator {
	return &LoadCoordinator{}
}

// Begin starts a load. Cancelling ctx before the engine answers resolves it to
// LoadTimeout. A closed coordinator returns a cell already resolved to LoadFailed.
func (c *LoadCoordinator) Begin(ctx context.Context) *promise.Cell[VideoLoadStatus] {
	cell := promise.New[VideoLoadStatus]()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cell.Resolve(LoadFailed)
		return cell
	}
	previous := c.pending
	c.pending = cell
	c.last = mo.None[VideoLoadStatus]()
	c.mu.Unlock()

	if previous != nil {
		previous.Resolve(LoadTimeout)
	}

	cell.ResolveOnCancel(ctx, LoadTimeout)
	return cell
}

// Resolve settles the pending load with status. It reports whether a pending
// load existed and this call decided its outcome.
func (c *LoadCoordinator) Resolve(status VideoLoadStatus) bool {
	c.mu.Lock()
	cell := c.pending
	c.mu.Unlock()

	if cell == nil || !cell.Resolve(status) {
		return false
	}

	c.mu.Lock()
	if c.pending == cell {
		c.pending = nil
		c.last = mo.Some(status)
	}
	c.mu.Unlock()
	return true
}

// Finish records the outcome a waiter observed on cell, which may differ from
// what Resolve saw when cancellation decided it.
func (c *LoadCoordinator) Finish(cell *promise.Cell[VideoLoadStatus]) VideoLoadStatus {
	status := cell.Await()

	c.mu.Lock()
	if c.pending == cell {
		c.pending = nil
		c.last = mo.Some(status)
	}
	c.mu.Unlock()

	return status
}

// Pending reports whether a load is waiting for the engine.
func (c *LoadCoordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Last returns the outcome of the most recent finished load, if any.
func (c *LoadCoordinator) Last() mo.Option[VideoLoadStatus] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Loaded reports whether the most recent load opened the source, playable or not.
func (c *LoadCoordinator) Loaded() bool {
	status, ok := c.Last().Get()
	return ok && (status == LoadLoaded || status == LoadUnplayable)
}

// Close resolves a pending load to LoadFailed and rejects later loads.
func (c *LoadCoordinator) Close() {
	c.mu.Lock()
	cell := c.pending
	c.pending = nil
	c.closed = true
	c.mu.Unlock()

	if cell != nil {
		cell.Resolve(LoadFailed)
	}
}
