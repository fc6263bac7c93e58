package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func (b *statefulBubble) Init() tea.Cmd {
	if b.options.Backend == nil {
		b.setState(engineState)
		return b.waitForUpdate()
	}

	return tea.Batch(b.waitForUpdate(), b.selectEngine(b.options.Backend), textinput.Blink)
}
