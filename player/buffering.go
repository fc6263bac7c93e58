package player

import "sync"

// BufferingDetector emits Buffering whenever the derived buffering flag changes.
//
// The flag is recomputed from scratch on every evaluation; evaluations are
// serialized so that two engine notifications arriving together yield one
// transition, in order, and never a duplicate.
type BufferingDetector struct {
	mu      sync.Mutex
	emitter *Emitter
	current bool
}

// NewBufferingDetector starts out not buffering.
func NewBufferingDetector(e *Emitter) *BufferingDetector {
	return &BufferingDetector{emitter: e}
}

// Evaluate derives the flag with derive and emits it if it changed. It reports
// whether an event was emitted.
func (d *BufferingDetector) Evaluate(derive func() bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	buffering := derive()
	if buffering == d.current {
		return false
	}

	d.current = buffering
	d.emitter.Buffering(buffering)
	return true
}

// IsBuffering returns the last emitted flag.
func (d *BufferingDetector) IsBuffering() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Reset forgets the last flag, emitting false if buffering was reported.
func (d *BufferingDetector) Reset() {
	d.Evaluate(func() bool { return false })
}
