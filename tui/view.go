package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wrap"
	"github.com/playbridge/playbridge/color"
	"github.com/playbridge/playbridge/icon"
	"github.com/playbridge/playbridge/player"
	"github.com/playbridge/playbridge/style"
	"github.com/playbridge/playbridge/util"
)

var (
	listExtraPaddingStyle = lipgloss.NewStyle().Padding(1, 2, 1, 0)
	paddingStyle          = lipgloss.NewStyle().Padding(1, 2)
)

func (b *statefulBubble) View() string {
	var output string

	switch b.state {
	case engineState:
		output = b.viewEngines()
	case sourceState:
		output = b.viewSource()
	case loadingState:
		output = b.viewLoading()
	case playerState:
		output = b.viewPlayer()
	case errorState:
		output = b.viewError()
	default:
		output = "Unknown state"
	}

	return b.notifier.View(output)
}

func (b *statefulBubble) viewEngines() string {
	return listExtraPaddingStyle.Render(b.enginesC.View())
}

func (b *statefulBubble) viewSource() string {
	return b.renderLines(true, []string{
		style.Title("Open " + b.backend.Name),
		"",
		b.inputC.View(),
	})
}

func (b *statefulBubble) viewLoading() string {
	return b.renderLines(true, []string{
		style.Title("Loading"),
		"",
		style.Truncate(b.width)(b.spinnerC.View() + " " + b.status),
	})
}

func (b *statefulBubble) viewPlayer() string {
	p := b.player()
	if p == nil {
		return ""
	}

	var (
		state    = p.State()
		position = p.CurrentPosition()
		buffered = p.BufferedPosition()
		duration = p.Duration()
	)

	buffering, bytes, fetches, lastError := b.stats.snapshot()

	var percent float64
	if duration > 0 {
		percent = util.Clamp(float64(position)/float64(duration), 0, 1)
	}

	timing := formatDuration(position) + " / " + formatDuration(duration)
	if buffered > position {
		timing += style.Faint(" buffered to " + formatDuration(buffered))
	}

	status := stateIcon(state) + " " + stateStyle(state)(state.String())
	if buffering {
		status += " " + icon.Get(icon.Buffering) + style.Faint(" buffering")
	}

	lines := []string{
		style.Title("Now Playing") + " " + style.Tag(style.Base, style.Lavender)(b.backend.Name),
		"",
		style.Truncate(b.width)(style.Fg(color.Purple)(b.source)),
		"",
		status,
		"",
		b.progressC.ViewAs(percent),
		timing,
	}

	if fetches > 0 {
		lines = append(lines, "", style.Faint(fmt.Sprintf("%s received in %s",
			humanize.Bytes(uint64(bytes)), util.Quantify(fetches, "fetch", "fetches"))))
	}

	if lastError != nil {
		lines = append(lines, "", wrap.String(style.Fg(color.Red)(icon.Get(icon.Fail)+" "+lastError.Error()), b.width))
	}

	return b.renderLines(true, lines)
}

func (b *statefulBubble) viewError() string {
	errorStyle := lipgloss.NewStyle().Foreground(style.ErrorColor).Bold(true)
	return b.renderLines(true, []string{
		style.ErrorTitle("Error"),
		"",
		icon.Get(icon.Fail) + " An error occurred:",
		"",
		wrap.String(errorStyle.Render(fmt.Sprint(b.lastError)), b.width),
	})
}

func (b *statefulBubble) renderLines(addHelp bool, lines []string) string {
	h := len(lines)
	l := strings.Join(lines, "\n")
	if addHelp {
		if b.height > h {
			l += strings.Repeat("\n", b.height-h)
		}
		l += b.helpC.View(b.keymap)
	}

	return paddingStyle.Render(l)
}

func stateIcon(s player.VideoState) string {
	switch s {
	case player.StatePlaying:
		return icon.Get(icon.Play)
	case player.StatePaused:
		return icon.Get(icon.Pause)
	case player.StateEnded:
		return icon.Get(icon.Ended)
	case player.StateFailed:
		return icon.Get(icon.Fail)
	default:
		return icon.Get(icon.Stop)
	}
}

func stateStyle(s player.VideoState) func(string) string {
	switch s {
	case player.StatePlaying:
		return style.Fg(style.SuccessColor)
	case player.StateFailed:
		return style.Fg(style.ErrorColor)
	case player.StatePaused:
		return style.Fg(style.WarningColor)
	default:
		return style.Bold
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "--:--"
	}

	d = d.Round(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
