package player

import (
	"sync"
	"time"
)

// PositionChanged carries one position sample. Both values lie in [0, Duration].
type PositionChanged struct {
	Position         time.Duration
	BufferedPosition time.Duration
}

// StreamingResponse reports the bytes one fetch transferred, partial if the fetch failed.
type StreamingResponse struct {
	ContentLength int64
}

// Listener receives adapter events. Any field may be nil.
//
// Callbacks run on whichever goroutine produced the event: an engine callback,
// the position sampler, a network fetch or the caller of SeekTo. They must not
// block and must tolerate concurrent invocation.
type Listener struct {
	OnPositionChanged   func(PositionChanged)
	OnVideoStateChanged func(VideoState)
	OnPlaybackError     func(error)
	OnStreamingResponse func(StreamingResponse)
	OnBuffering         func(isBuffering bool)
}

// Emitter fans events out to the subscribed listeners. Once closed it drops
// every event.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	next      uint64
	closed    bool
}

// NewEmitter returns an emitter without listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[uint64]Listener)}
}

// Subscribe adds l. The returned function removes it and may be called more than once.
func (e *Emitter) Subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.next
	e.next++
	e.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Close drops all listeners.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	clear(e.listeners)
}

func (e *Emitter) snapshot() []Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil
	}

	out := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		out = append(out, l)
	}
	return out
}

func (e *Emitter) PositionChanged(ev PositionChanged) {
	for _, l := range e.snapshot() {
		if l.OnPositionChanged != nil {
			l.OnPositionChanged(ev)
		}
	}
}

func (e *Emitter) VideoStateChanged(s VideoState) {
	for _, l := range e.snapshot() {
		if l.OnVideoStateChanged != nil {
			l.OnVideoStateChanged(s)
		}
	}
}

func (e *Emitter) PlaybackError(err error) {
	for _, l := range e.snapshot() {
		if l.OnPlaybackError != nil {
			l.OnPlaybackError(err)
		}
	}
}

func (e *Emitter) StreamingResponse(ev StreamingResponse) {
	for _, l := range e.snapshot() {
		if l.OnStreamingResponse != nil {
			l.OnStreamingResponse(ev)
		}
	}
}

func (e *Emitter) Buffering(isBuffering bool) {
	for _, l := range e.snapshot() {
		if l.OnBuffering != nil {
			l.OnBuffering(isBuffering)
		}
	}
}
