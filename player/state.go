package player

import "sync"

// VideoState is the confirmed, consumer-visible playback state.
type VideoState int

const (
	// StateNotReady means no source has been handed to the engine yet.
	StateNotReady VideoState = iota
	// StateIdle means a source was accepted and playback has not started.
	StateIdle
	StatePlaying
	StatePaused
	// StateEnded means the playhead reached the end of the media.
	StateEnded
	// StateFailed means the engine raised a fatal error for the current source.
	StateFailed
)

func (s VideoState) String() string {
	switch s {
	case StateNotReady:
		return "NotReady"
	case StateIdle:
		return "Idle"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MarshalText renders the state by name.
func (s VideoState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// VideoLoadStatus classifies how a load ended.
type VideoLoadStatus int

const (
	LoadLoaded VideoLoadStatus = iota
	// LoadUnplayable means the engine opened the source but cannot play it.
	LoadUnplayable
	LoadFailed
	// LoadTimeout means the load was cancelled or superseded before the engine answered.
	LoadTimeout
)

func (s VideoLoadStatus) String() string {
	switch s {
	case LoadLoaded:
		return "Loaded"
	case LoadUnplayable:
		return "Unplayable"
	case LoadFailed:
		return "Failed"
	case LoadTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// MarshalText renders the status by name.
func (s VideoLoadStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateMachine holds the confirmed VideoState and emits VideoStateChanged on
// every real transition.
type StateMachine struct {
	mu      sync.Mutex
	state   VideoState
	emitter *Emitter
}

// NewStateMachine starts in StateNotReady.
func NewStateMachine(e *Emitter) *StateMachine {
	return &StateMachine{state: StateNotReady, emitter: e}
}

// State returns the last confirmed state.
func (m *StateMachine) State() VideoState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Confirm records a state the engine reported. Repeated confirmations of the
// current state are dropped. It reports whether an event was emitted.
func (m *StateMachine) Confirm(s VideoState) bool {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return false
	}
	m.state = s
	m.mu.Unlock()

	m.emitter.VideoStateChanged(s)
	return true
}

// Reset records that the engine accepted a new source. The event is emitted even
// when the previous source was also idle, since every accepted source starts a
// new lifecycle.
func (m *StateMachine) Reset(s VideoState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	m.emitter.VideoStateChanged(s)
}
