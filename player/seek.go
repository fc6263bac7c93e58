package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playbridge/playbridge/internal/promise"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/util"
)

// SeekCoordinator turns a seek request into one boolean outcome.
//
// Before the native seek is issued an optimistic PositionChanged carrying the
// clamped target is emitted. A later seek supersedes a pending one, which then
// resolves to false.
type SeekCoordinator struct {
	emitter  *Emitter
	inflight atomic.Int32

	mu      sync.Mutex
	pending *promise.Cell[bool]
	target  time.Duration
	closed  bool
}

// NewSeekCoordinator reports optimistic positions through e.
func NewSeekCoordinator(e *Emitter) *SeekCoordinator {
	return &SeekCoordinator{emitter: e}
}

// Clamp limits position to [0, duration].
func Clamp(position, duration time.Duration) time.Duration {
	return util.Clamp(position, 0, max(duration, 0))
}

// Seek runs one seek to position within [0, duration] and waits for it to settle.
// buffered is reported alongside the optimistic position. An error is returned
// only when ctx ends first or the coordinator is closed; the seek itself keeps
// going, still resolves and counts towards IsSeeking until it does.
func (c *SeekCoordinator) Seek(ctx context.Context, position, duration, buffered time.Duration, issue func(time.Duration) error) (bool, error) {
	return c.SeekWith(ctx, position, duration, buffered, func(target time.Duration, _ func(bool)) error {
		return issue(target)
	})
}

// SeekWith is Seek for engines that complete seeks individually: issue receives
// a settle func bound to this seek only, so a late completion of a superseded
// seek never resolves the one that replaced it.
func (c *SeekCoordinator) SeekWith(ctx context.Context, position, duration, buffered time.Duration, issue func(target time.Duration, settle func(ok bool)) error) (bool, error) {
	target := Clamp(position, duration)

	c.inflight.Add(1)
	cell, err := c.begin(target)
	if err != nil {
		c.inflight.Add(-1)
		return false, err
	}

	c.emitter.PositionChanged(PositionChanged{Position: target, BufferedPosition: Clamp(buffered, duration)})

	settle := func(ok bool) { c.settle(cell, ok) }
	if err := issue(target, settle); err != nil {
		log.Component("seek").Warnf("seek to %s rejected: %v", target, err)
		c.settle(cell, false)
	}

	ok, err := cell.Wait(ctx)
	if err != nil {
		go func() {
			<-cell.Done()
			c.inflight.Add(-1)
		}()
		return false, err
	}

	c.inflight.Add(-1)
	return ok, nil
}

func (c *SeekCoordinator) begin(target time.Duration) (*promise.Cell[bool], error) {
	cell := promise.New[bool]()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrDisposed
	}
	previous := c.pending
	c.pending = cell
	c.target = target
	c.mu.Unlock()

	if previous != nil {
		previous.Resolve(false)
	}
	return cell, nil
}

func (c *SeekCoordinator) settle(cell *promise.Cell[bool], ok bool) {
	cell.Resolve(ok)

	c.mu.Lock()
	if c.pending == cell {
		c.pending = nil
	}
	c.mu.Unlock()
}

// Settle resolves the pending seek. It reports whether one was pending.
func (c *SeekCoordinator) Settle(ok bool) bool {
	c.mu.Lock()
	cell := c.pending
	c.pending = nil
	c.mu.Unlock()

	if cell == nil {
		return false
	}
	return cell.Resolve(ok)
}

// Target returns the target of the pending seek.
func (c *SeekCoordinator) Target() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return 0, false
	}
	return c.target, true
}

// IsSeeking reports whether any seek is still waiting for its outcome, including
// seeks whose caller stopped waiting.
func (c *SeekCoordinator) IsSeeking() bool {
	return c.inflight.Load() > 0
}

// Close resolves a pending seek to false and rejects later seeks.
func (c *SeekCoordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Settle(false)
}
