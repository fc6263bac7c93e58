// Package backend lists the engines a player can be built on and builds them.
package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/playbridge/playbridge/engine/hls"
	"github.com/playbridge/playbridge/engine/mpv"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/network"
	"github.com/playbridge/playbridge/player"
	"github.com/playbridge/playbridge/player/itemstatus"
	"github.com/playbridge/playbridge/player/statecallback"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// ErrUnknown is returned for engine names no backend answers to.
var ErrUnknown = errors.New("unknown engine")

// Backend pairs an engine with the adapter for its family.
type Backend struct {
	ID          string
	Name        string
	Description string
	// Create builds a player with its own engine instance.
	Create func(options player.Options) (player.VideoPlayer, error)
}

func (b *Backend) String() string {
	return b.Name
}

// Builtins returns the in-tree backends.
func Builtins() []*Backend {
	return []*Backend{
		{
			ID:          "hls",
			Name:        "HLS",
			Description: "In-process HLS engine reporting coarse engine states",
			Create: func(options player.Options) (player.VideoPlayer, error) {
				return statecallback.New(hls.Factory(hls.OptionsFromConfig()...), options, network.OptionsFromConfig()...)
			},
		},
		{
			ID:          "mpv",
			Name:        "mpv",
			Description: "mpv process observed over its JSON IPC",
			Create: func(options player.Options) (player.VideoPlayer, error) {
				return itemstatus.New(mpv.Factory(mpv.OptionsFromConfig()...), options, network.OptionsFromConfig()...)
			},
		},
	}
}

// IDs lists the ids of the builtin backends.
func IDs() []string {
	return lo.Map(Builtins(), func(b *Backend, _ int) string { return b.ID })
}

// Get finds a backend by id, ignoring case.
func Get(id string) (*Backend, bool) {
	return lo.Find(Builtins(), func(b *Backend) bool {
		return strings.EqualFold(b.ID, id)
	})
}

// Default returns the backend named by player.engine.
func Default() (*Backend, error) {
	id := viper.GetString(key.PlayerEngine)

	b, ok := Get(id)
	if !ok {
		return nil, fmt.Errorf("%w %q, available: %s", ErrUnknown, id, strings.Join(IDs(), ", "))
	}
	return b, nil
}
