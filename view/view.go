// Package view hosts one player per attachment, the way a UI surface owns the
// native player it displays.
package view

import (
	"errors"
	"fmt"
	"sync"

	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/player"
)

// ErrAttached is returned by Attach while a player is still attached.
var ErrAttached = errors.New("view already attached")

// Factory builds the player for one attachment.
type Factory func(options player.Options) (player.VideoPlayer, error)

// View creates a player on Attach and disposes it on Detach.
//
// Set the callback fields before calling Attach to avoid missing events. The
// Report callbacks may run on any goroutine.
type View struct {
	// ReadyCommand receives the player once per attachment, after it was
	// created and before any load.
	ReadyCommand func(p player.VideoPlayer)

	// ReportCurrentPositionChanged mirrors PositionChanged events.
	ReportCurrentPositionChanged func(ev player.PositionChanged)

	// ReportVideoStateChanged mirrors VideoStateChanged events.
	ReportVideoStateChanged func(state player.VideoState)

	mu          sync.Mutex
	player      player.VideoPlayer
	unsubscribe func()
}

// Attach builds a player through factory and hands it to ReadyCommand.
func (v *View) Attach(factory Factory, options player.Options) (player.VideoPlayer, error) {
	v.mu.Lock()
	if v.player != nil {
		v.mu.Unlock()
		return nil, ErrAttached
	}

	p, err := factory(options)
	if err != nil {
		v.mu.Unlock()
		return nil, fmt.Errorf("create player: %w", err)
	}

	v.player = p
	v.unsubscribe = p.Subscribe(player.Listener{
		OnPositionChanged: func(ev player.PositionChanged) {
			if v.ReportCurrentPositionChanged != nil {
				v.ReportCurrentPositionChanged(ev)
			}
		},
		OnVideoStateChanged: func(state player.VideoState) {
			if v.ReportVideoStateChanged != nil {
				v.ReportVideoStateChanged(state)
			}
		},
	})
	v.mu.Unlock()

	log.Debugf("view attached")

	if v.ReadyCommand != nil {
		v.ReadyCommand(p)
	}
	return p, nil
}

// Player returns the attached player, or nil.
func (v *View) Player() player.VideoPlayer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.player
}

// Detach disposes the attached player. Detaching an empty view does nothing.
func (v *View) Detach() error {
	v.mu.Lock()
	p, unsubscribe := v.player, v.unsubscribe
	v.player, v.unsubscribe = nil, nil
	v.mu.Unlock()

	if p == nil {
		return nil
	}

	unsubscribe()
	log.Debugf("view detached")
	return p.Dispose()
}
