// Package player defines the playback contract shared by every engine adapter and
// the coordinators adapters are built from.
//
// An adapter binds one native engine instance to VideoPlayer. Two independent
// adapter families exist, one per engine event model: player/statecallback for
// engines that only report a coarse state, and player/itemstatus for engines that
// expose an observable media item.
package player

import (
	"context"
	"errors"
	"net/url"
	"time"
)

var (
	// ErrNotSupported is returned by operations an adapter deliberately does not implement.
	ErrNotSupported = errors.New("operation not supported")

	// ErrDisposed is returned by blocking operations on a disposed adapter.
	ErrDisposed = errors.New("player disposed")

	// ErrInvalidSource is returned when a source cannot be handed to an engine at all.
	ErrInvalidSource = errors.New("invalid source")
)

// VideoPlayer is the playback contract every engine adapter implements.
//
// Load and seek operations block until the engine resolves them. Commands
// (Play, Pause, Stop) are forwarded to the engine and return immediately; their
// effect is observed through VideoStateChanged events. State never reflects a
// transition the engine has not confirmed.
type VideoPlayer interface {
	// FromURL loads a remote source. Cancelling ctx before the engine becomes ready
	// resolves the load to LoadTimeout.
	FromURL(ctx context.Context, source *url.URL) (VideoLoadStatus, error)

	// FromLocal loads a file from the local filesystem.
	FromLocal(ctx context.Context, path string) (VideoLoadStatus, error)

	// FromResource loads a bundled resource by name and extension.
	FromResource(ctx context.Context, name, extension string) (VideoLoadStatus, error)

	Play()
	Pause()
	Stop()

	// SeekTo moves the playhead to position clamped to [0, Duration]. It reports
	// false only when the engine rejected the seek or a later seek superseded it.
	SeekTo(ctx context.Context, position time.Duration) (bool, error)
	Forward(ctx context.Context, step time.Duration) (bool, error)
	Backward(ctx context.Context, step time.Duration) (bool, error)

	// Authorize sets the Authorization header sent with every later fetch.
	Authorize(value string)

	// PreLoad always fails with ErrNotSupported.
	PreLoad(source string, sizeInBytes int) error

	// CancelPendingSeeks asks the engine to abandon outstanding seeks. Engines
	// that cannot cancel ignore it.
	CancelPendingSeeks()

	Duration() time.Duration
	DurationMilliseconds() float64
	CurrentPosition() time.Duration
	BufferedPosition() time.Duration
	State() VideoState
	IsSeeking() bool

	Options() Options
	SetOptions(Options)

	// Subscribe registers l and returns a function that removes it.
	Subscribe(l Listener) (unsubscribe func())

	// Dispose stops background work and releases the engine. It is safe to call
	// more than once.
	Dispose() error
}

// Forward seeks step ahead of the current position.
func Forward(ctx context.Context, p VideoPlayer, step time.Duration) (bool, error) {
	return p.SeekTo(ctx, p.CurrentPosition()+step)
}

// Backward seeks step behind the current position.
func Backward(ctx context.Context, p VideoPlayer, step time.Duration) (bool, error) {
	return p.SeekTo(ctx, p.CurrentPosition()-step)
}

// PreLoad is the shared rejection for source preloading.
func PreLoad(source string, _ int) error {
	return &UnsupportedError{Op: "preload", Source: source}
}

// UnsupportedError names the rejected operation. It matches ErrNotSupported.
type UnsupportedError struct {
	Op     string
	Source string
}

func (e *UnsupportedError) Error() string {
	if e.Source == "" {
		return e.Op + ": " + ErrNotSupported.Error()
	}
	return e.Op + " " + e.Source + ": " + ErrNotSupported.Error()
}

func (e *UnsupportedError) Unwrap() error {
	return ErrNotSupported
}
