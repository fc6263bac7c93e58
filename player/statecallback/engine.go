// Package statecallback adapts engines that report a coarse playback state
// through callbacks to the player.VideoPlayer contract.
//
// Such an engine tells its listeners only which of four states it is in and
// whether it intends to play once ready; seeks are acknowledged by a separate
// callback. It cannot tell "ready" from "ready but unplayable", so loads through
// this adapter never resolve to player.LoadUnplayable.
package statecallback

import (
	"net/http"
	"net/url"
	"time"
)

// EngineState is the coarse state such an engine reports.
type EngineState int

const (
	EngineIdle EngineState = iota + 1
	EngineBuffering
	EngineReady
	EngineEnded
)

func (s EngineState) String() string {
	switch s {
	case EngineIdle:
		return "idle"
	case EngineBuffering:
		return "buffering"
	case EngineReady:
		return "ready"
	case EngineEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EngineListener receives engine callbacks. Engines must not hold their own
// locks while invoking it.
type EngineListener interface {
	OnPlayerStateChanged(playWhenReady bool, state EngineState)
	OnPlayerError(err error)
	// OnSeekProcessed is called once for every accepted SeekTo.
	OnSeekProcessed()
}

// Engine is a native player driven through a coarse state model.
type Engine interface {
	AddListener(l EngineListener)
	RemoveListener(l EngineListener)

	// Prepare replaces the current source and starts loading it.
	Prepare(source *url.URL) error
	SetPlayWhenReady(play bool)
	// Stop halts playback and returns the engine to EngineIdle.
	Stop()
	SeekTo(position time.Duration) error

	State() EngineState
	CurrentPosition() time.Duration
	BufferedPosition() time.Duration
	// Duration is negative while unknown.
	Duration() time.Duration

	SetUseController(show bool)
	Release() error
}

// EngineFactory creates an engine that fetches media through client.
type EngineFactory func(client *http.Client) (Engine, error)
