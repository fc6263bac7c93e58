package tui

import (
	"fmt"

	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/playbridge/playbridge/internal/ui"
	"github.com/playbridge/playbridge/player"
)

func (b *statefulBubble) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := b.notifier.Update(msg)

	switch msg := msg.(type) {
	case updatedMsg:
		return b, tea.Batch(cmd, b.waitForUpdate())
	case error:
		b.raiseError(msg)
		return b, cmd
	case tea.WindowSizeMsg:
		b.resize(msg.Width, msg.Height)
	case tea.KeyMsg:
		if bubblesKey.Matches(msg, b.keymap.forceQuit) {
			return b, tea.Quit
		}
	}

	var stateCmd tea.Cmd
	switch b.state {
	case engineState:
		stateCmd = b.updateEngines(msg)
	case sourceState:
		stateCmd = b.updateSource(msg)
	case loadingState:
		stateCmd = b.updateLoading(msg)
	case playerState:
		stateCmd = b.updatePlayer(msg)
	case errorState:
		stateCmd = b.updateError(msg)
	}

	return b, tea.Batch(cmd, stateCmd)
}

func (b *statefulBubble) updateEngines(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok && bubblesKey.Matches(msg, b.keymap.confirm) {
		item, ok := b.enginesC.SelectedItem().(*listItem)
		if !ok {
			return nil
		}
		return b.selectEngine(item.backend)
	}

	var cmd tea.Cmd
	b.enginesC, cmd = b.enginesC.Update(msg)
	return cmd
}

func (b *statefulBubble) updateSource(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case bubblesKey.Matches(msg, b.keymap.confirm):
			if b.inputC.Value() == "" {
				return nil
			}
			return b.load(b.inputC.Value())
		case bubblesKey.Matches(msg, b.keymap.back):
			if b.options.Backend == nil {
				b.inputC.Blur()
				b.setState(engineState)
			}
			return nil
		}
	}

	var cmd tea.Cmd
	b.inputC, cmd = b.inputC.Update(msg)
	return cmd
}

func (b *statefulBubble) updateLoading(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg:
		return b.onLoaded(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spinnerC, cmd = b.spinnerC.Update(msg)
		return cmd
	case tea.KeyMsg:
		if bubblesKey.Matches(msg, b.keymap.back) {
			b.detach()
			b.back()
		}
	}
	return nil
}

func (b *statefulBubble) updatePlayer(msg tea.Msg) tea.Cmd {
	p := b.player()
	if p == nil {
		return nil
	}

	switch msg := msg.(type) {
	case seekedMsg:
		switch {
		case msg.err != nil:
			return ui.Notify(fmt.Sprintf("seek to %s: %v", msg.target, msg.err))
		case !msg.ok:
			return ui.Notify(fmt.Sprintf("seek to %s did not complete", msg.target))
		}
	case tea.KeyMsg:
		switch {
		case bubblesKey.Matches(msg, b.keymap.quit):
			return tea.Quit
		case bubblesKey.Matches(msg, b.keymap.back):
			b.detach()
			b.back()
		case bubblesKey.Matches(msg, b.keymap.playPause):
			switch p.State() {
			case player.StatePlaying:
				p.Pause()
			case player.StateEnded:
				return tea.Sequence(b.seek(0), func() tea.Msg { p.Play(); return nil })
			default:
				p.Play()
			}
		case bubblesKey.Matches(msg, b.keymap.forward):
			return b.seek(p.CurrentPosition() + b.seekStep())
		case bubblesKey.Matches(msg, b.keymap.backward):
			return b.seek(p.CurrentPosition() - b.seekStep())
		case bubblesKey.Matches(msg, b.keymap.replay):
			return tea.Sequence(b.seek(0), func() tea.Msg { p.Play(); return nil })
		case bubblesKey.Matches(msg, b.keymap.stop):
			p.Stop()
		}
	}

	return nil
}

func (b *statefulBubble) updateError(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case bubblesKey.Matches(msg, b.keymap.quit):
			return tea.Quit
		case bubblesKey.Matches(msg, b.keymap.back):
			b.back()
		}
	}
	return nil
}

// back returns to the source prompt, or to the engine list if the source
// was given up front.
func (b *statefulBubble) back() {
	b.lastError = nil

	switch {
	case b.options.Source == "":
		b.setState(sourceState)
		b.inputC.Focus()
	case b.options.Backend == nil:
		b.setState(engineState)
	default:
		b.setState(sourceState)
		b.inputC.SetValue(b.options.Source)
		b.inputC.Focus()
	}
}
