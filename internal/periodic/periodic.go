// Package periodic runs a function on a self-rescheduling timer.
//
// Each tick re-checks that the task is still live when it fires, not only when it
// was scheduled, and schedules its successor only after it has finished. Stop
// waits for an in-flight tick, so once Stop returns the function is not running
// and will not run again until the next Start. Close is Stop that also refuses
// every later Start.
package periodic

import (
	"sync"
	"time"
)

// Task is a cancellable periodic timer. The zero value is not usable; use New.
type Task struct {
	fn func()

	mu       sync.Mutex
	idle     *sync.Cond
	interval time.Duration
	live     bool
	closed   bool
	gen      uint64
	timer    *time.Timer
	firing   int
}

// New creates a stopped task that calls fn every interval.
func New(interval time.Duration, fn func()) *Task {
	t := &Task{fn: fn, interval: interval}
	t.idle = sync.NewCond(&t.mu)
	return t
}

// Start schedules the first tick one interval from now. Starting a running or
// closed task is a no-op.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.live || t.closed {
		return
	}

	t.live = true
	t.gen++
	t.schedule(t.gen)
}

// Stop cancels future ticks and waits for a tick that is currently running.
// It must not be called from within the task function.
func (t *Task) Stop() {
	t.halt(false)
}

// Close stops the task for good. Start does nothing once Close was called.
func (t *Task) Close() {
	t.halt(true)
}

func (t *Task) halt(closing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.live = false
	t.closed = t.closed || closing
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	for t.firing > 0 {
		t.idle.Wait()
	}
}

// Running reports whether the task is scheduled.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// SetInterval changes the period; it takes effect from the next scheduled tick.
func (t *Task) SetInterval(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = interval
}

// schedule must be called with t.mu held.
func (t *Task) schedule(gen uint64) {
	t.timer = time.AfterFunc(t.interval, func() { t.fire(gen) })
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if !t.live || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.firing++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.firing--
		t.idle.Broadcast()
		t.mu.Unlock()
	}()
	t.fn()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live && t.gen == gen {
		t.schedule(gen)
	}
}
