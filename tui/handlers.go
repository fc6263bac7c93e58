package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/playbridge/playbridge/backend"
	"github.com/playbridge/playbridge/inline"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/player"
)

type (
	updatedMsg struct{}

	loadedMsg struct {
		load   int
		status player.VideoLoadStatus
		err    error
	}

	seekedMsg struct {
		target time.Duration
		ok     bool
		err    error
	}
)

func (b *statefulBubble) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		<-b.updates
		return updatedMsg{}
	}
}

func (b *statefulBubble) selectEngine(be *backend.Backend) tea.Cmd {
	b.backend = be
	log.Infof("engine %s selected", be.ID)

	if b.options.Source != "" {
		return b.load(b.options.Source)
	}

	b.setState(sourceState)
	b.inputC.Focus()
	return textinput.Blink
}

// load attaches a fresh player and starts loading source into it.
func (b *statefulBubble) load(source string) tea.Cmd {
	loader, err := inline.ParseSource(source)
	if err != nil {
		b.raiseError(err)
		return nil
	}

	p, err := b.view.Attach(b.backend.Create, b.options.Player)
	if err != nil {
		b.raiseError(err)
		return nil
	}

	if b.options.Authorization != "" {
		p.Authorize(b.options.Authorization)
	}

	b.loads++
	load := b.loads
	b.source = source
	b.status = "Loading " + source
	b.stats.reset()
	b.setState(loadingState)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if b.options.LoadTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), b.options.LoadTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	b.cancelLoad = cancel

	return tea.Batch(b.spinnerC.Tick, func() tea.Msg {
		defer cancel()
		status, err := loader(ctx, p)
		return loadedMsg{load: load, status: status, err: err}
	})
}

func (b *statefulBubble) seek(target time.Duration) tea.Cmd {
	p := b.player()
	if p == nil {
		return nil
	}

	return func() tea.Msg {
		ok, err := p.SeekTo(context.Background(), target)
		return seekedMsg{target: target, ok: ok, err: err}
	}
}

// detach disposes the current player, if any.
func (b *statefulBubble) detach() {
	if b.cancelLoad != nil {
		b.cancelLoad()
		b.cancelLoad = nil
	}

	if err := b.view.Detach(); err != nil {
		log.Warnf("dispose player: %v", err)
	}
}

func (b *statefulBubble) onLoaded(msg loadedMsg) tea.Cmd {
	// abandoned by going back
	if msg.load != b.loads {
		return nil
	}
	b.cancelLoad = nil

	if msg.status == player.LoadLoaded {
		b.setState(playerState)
		return nil
	}

	b.detach()
	if msg.err != nil {
		b.raiseError(fmt.Errorf("%w: %s: %w", inline.ErrNotLoaded, msg.status, msg.err))
	} else {
		b.raiseError(fmt.Errorf("%w: %s", inline.ErrNotLoaded, msg.status))
	}
	return nil
}
