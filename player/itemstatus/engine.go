// Package itemstatus adapts engines that expose the readiness of a current
// media item through observed properties to the player.VideoPlayer contract.
//
// Unlike state-callback engines, these report whether the item became ready to
// play, whether the asset is playable at all, and whether the buffer is likely
// to keep up, each as a separate notification. Playback state is derived from
// the item status and the engine's time control status.
package itemstatus

import (
	"net/http"
	"net/url"
	"time"
)

// ItemStatus is the readiness of the current item.
type ItemStatus int

const (
	ItemUnknown ItemStatus = iota
	ItemReadyToPlay
	ItemFailed
)

func (s ItemStatus) String() string {
	switch s {
	case ItemReadyToPlay:
		return "ready to play"
	case ItemFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TimeControlStatus is what the engine is doing with time.
type TimeControlStatus int

const (
	TimePaused TimeControlStatus = iota
	// TimeWaiting means playback was requested but the engine waits for data.
	TimeWaiting
	TimePlaying
)

func (s TimeControlStatus) String() string {
	switch s {
	case TimeWaiting:
		return "waiting"
	case TimePlaying:
		return "playing"
	default:
		return "paused"
	}
}

// Observer receives property changes and item notifications. Engines must not
// hold their own locks while calling it.
type Observer interface {
	ItemStatusChanged(status ItemStatus)
	TimeControlStatusChanged(status TimeControlStatus)

	PlaybackBufferEmpty()
	PlaybackLikelyToKeepUp()
	PlaybackBufferFull()

	DidPlayToEnd()
	FailedToPlayToEnd(err error)

	// AccessLogEntry reports bytes transferred for one fetch the engine made
	// outside the instrumented client.
	AccessLogEntry(bytes int64)
	ErrorLogEntry(err error)
}

// Engine is a native player that exposes a current item.
type Engine interface {
	// SetObserver replaces the observer. nil detaches it.
	SetObserver(o Observer)

	// ReplaceCurrentItem discards the current item and starts loading source.
	ReplaceCurrentItem(source *url.URL) error

	ItemStatus() ItemStatus
	// ItemError describes why the item failed.
	ItemError() error
	// Playable reports whether the ready item's asset can be played.
	Playable() bool
	LikelyToKeepUp() bool
	TimeControlStatus() TimeControlStatus

	Play()
	Pause()
	// Seek starts a seek and returns at once.
	Seek(position time.Duration) error
	Seeking() bool
	CancelPendingSeeks()

	CurrentTime() time.Duration
	BufferedTime() time.Duration
	// Duration is negative while unknown.
	Duration() time.Duration

	SetShowsPlaybackControls(show bool)
	Close() error
}

// SeekCompleter is implemented by engines that report when a seek settles.
// done is called exactly once per accepted seek; finished is false when the
// seek was interrupted or cancelled.
type SeekCompleter interface {
	SeekWithCompletion(position time.Duration, done func(finished bool)) error
}

// EngineFactory creates an engine that fetches media through client.
type EngineFactory func(client *http.Client) (Engine, error)
