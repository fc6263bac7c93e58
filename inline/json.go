package inline

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Record is one line of inline output.
type Record struct {
	Event string    `json:"event" jsonschema:"enum=load,enum=seek,enum=position,enum=state,enum=buffering,enum=streaming,enum=error,enum=done"`
	At    time.Time `json:"at"`

	// Status is the load status of load records.
	Status string `json:"status,omitempty" jsonschema:"enum=Loaded,enum=Unplayable,enum=Failed,enum=Timeout"`
	// State is the confirmed playback state of state and done records.
	State string `json:"state,omitempty" jsonschema:"enum=NotReady,enum=Idle,enum=Playing,enum=Paused,enum=Ended,enum=Failed"`

	PositionMs float64 `json:"position_ms,omitempty"`
	BufferedMs float64 `json:"buffered_ms,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`

	Buffering *bool `json:"buffering,omitempty"`
	// Seeked is whether a seek record's seek completed.
	Seeked *bool `json:"seeked,omitempty"`
	// Bytes is the size of the fetch a streaming record reports.
	Bytes int64  `json:"bytes,omitempty"`
	Error string `json:"error,omitempty"`
}

// Schema describes Record.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
	}

	schema := reflector.Reflect(&Record{})
	schema.Title = "playbridge inline record"
	schema.Description = "One JSON object per line, written by play --json"
	return schema
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
