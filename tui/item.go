package tui

import (
	"github.com/playbridge/playbridge/backend"
	"github.com/playbridge/playbridge/icon"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/style"
	"github.com/spf13/viper"
)

// listItem shows a backend in the engine list.
type listItem struct {
	backend *backend.Backend
}

func (t *listItem) Title() string {
	title := t.backend.Name
	if t.backend.ID == viper.GetString(key.PlayerEngine) {
		title += " " + style.Faint("(default)")
	}
	return icon.Get(icon.Play) + " " + title
}

func (t *listItem) Description() string {
	return t.backend.Description
}

func (t *listItem) FilterValue() string {
	return t.backend.ID
}
