package history

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Entry is one saved resume position.
type Entry struct {
	Source   string        `json:"source"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	SavedAt  time.Time     `json:"saved_at"`
}

// Progress is the watched fraction, or 0 when the duration is unknown.
func (e *Entry) Progress() float64 {
	if e.Duration <= 0 {
		return 0
	}
	return min(float64(e.Position)/float64(e.Duration), 1)
}

func (e *Entry) String() string {
	s := e.Source + " at " + e.Position.Round(time.Second).String()
	if p := e.Progress(); p > 0 {
		s += fmt.Sprintf(" (%.0f%%)", p*100)
	}
	return s + ", " + humanize.Time(e.SavedAt)
}
