// Package tui provides the interactive player dashboard.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/playbridge/playbridge/backend"
	"github.com/playbridge/playbridge/player"
)

// Options configures the dashboard.
type Options struct {
	// Backends are offered when Backend is nil. Defaults to backend.Builtins().
	Backends []*backend.Backend
	// Backend skips the engine list.
	Backend *backend.Backend
	// Source skips the source prompt.
	Source string

	Player        player.Options
	Authorization string
	LoadTimeout   time.Duration
	// SeekStep defaults to player.seek_step.
	SeekStep time.Duration
}

// Run shows the dashboard until the user quits. The player it created is
// disposed before Run returns.
func Run(options *Options) error {
	bubble := newBubble(options)
	defer bubble.detach()

	_, err := tea.NewProgram(bubble, tea.WithAltScreen()).Run()
	return err
}
