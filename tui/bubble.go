package tui

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/playbridge/playbridge/backend"
	"github.com/playbridge/playbridge/internal/ui"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/player"
	"github.com/playbridge/playbridge/style"
	"github.com/playbridge/playbridge/util"
	"github.com/playbridge/playbridge/view"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type statefulBubble struct {
	state  state
	keymap *statefulKeymap

	// components
	spinnerC  spinner.Model
	inputC    textinput.Model
	enginesC  list.Model
	progressC progress.Model
	helpC     help.Model
	notifier  *ui.Model

	view    *view.View
	backend *backend.Backend
	source  string
	// cancelLoad aborts the load in flight, resolving it to LoadTimeout.
	cancelLoad context.CancelFunc
	// loads counts started loads so results of abandoned ones are dropped.
	loads  int
	status string

	stats   *stats
	updates chan struct{}

	lastError error

	width, height int

	options *Options
}

// stats collects what listener callbacks report. Callbacks run on engine
// goroutines, the bubble reads it while rendering.
type stats struct {
	mu        sync.Mutex
	buffering bool
	bytes     int64
	fetches   int
	lastError error
}

func (s *stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffering, s.bytes, s.fetches, s.lastError = false, 0, 0, nil
}

func (s *stats) snapshot() (buffering bool, bytes int64, fetches int, lastError error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffering, s.bytes, s.fetches, s.lastError
}

func (b *statefulBubble) raiseError(err error) {
	b.lastError = err
	b.setState(errorState)
}

func (b *statefulBubble) setState(s state) {
	b.state = s
	b.keymap.setState(s)
}

func (b *statefulBubble) resize(width, height int) {
	x, y := paddingStyle.GetFrameSize()
	xx, yy := listExtraPaddingStyle.GetFrameSize()

	b.enginesC.SetSize(width-xx, height-yy)
	b.enginesC.Help.Width = width - xx

	b.progressC.Width = width - x
	b.inputC.Width = width - x

	b.width = width - x
	b.height = height - y
	b.helpC.Width = width - xx
}

func (b *statefulBubble) player() player.VideoPlayer {
	return b.view.Player()
}

// touch wakes the bubble up without blocking the caller.
func (b *statefulBubble) touch() {
	select {
	case b.updates <- struct{}{}:
	default:
	}
}

func (b *statefulBubble) seekStep() time.Duration {
	if b.options.SeekStep > 0 {
		return b.options.SeekStep
	}
	return viper.GetDuration(key.PlayerSeekStep)
}

func newBubble(options *Options) *statefulBubble {
	keymap := newStatefulKeymap()
	bubble := statefulBubble{
		keymap:   keymap,
		notifier: &ui.Model{},
		stats:    &stats{},
		updates:  make(chan struct{}, 1),
		options:  options,
	}

	bubble.view = &view.View{
		ReadyCommand: func(p player.VideoPlayer) {
			p.Subscribe(player.Listener{
				OnBuffering: func(isBuffering bool) {
					bubble.stats.mu.Lock()
					bubble.stats.buffering = isBuffering
					bubble.stats.mu.Unlock()
					bubble.touch()
				},
				OnStreamingResponse: func(ev player.StreamingResponse) {
					bubble.stats.mu.Lock()
					bubble.stats.bytes += ev.ContentLength
					bubble.stats.fetches++
					bubble.stats.mu.Unlock()
				},
				OnPlaybackError: func(err error) {
					bubble.stats.mu.Lock()
					bubble.stats.lastError = err
					bubble.stats.mu.Unlock()
					bubble.touch()
				},
			})
		},
		ReportCurrentPositionChanged: func(player.PositionChanged) { bubble.touch() },
		ReportVideoStateChanged:      func(player.VideoState) { bubble.touch() },
	}

	bubble.helpC = help.New()

	bubble.spinnerC = spinner.New()
	bubble.spinnerC.Spinner = spinner.Dot
	bubble.spinnerC.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bubble.inputC = textinput.New()
	bubble.inputC.Placeholder = "https://example.com/index.m3u8, a local path or resource:name.ext"
	bubble.inputC.Prompt = "> "

	bubble.progressC = progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(style.AccentColor).
		Foreground(style.AccentColor).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedTitle

	backends := options.Backends
	if len(backends) == 0 {
		backends = backend.Builtins()
	}

	bubble.enginesC = list.New(lo.Map(backends, func(b *backend.Backend, _ int) list.Item {
		return &listItem{backend: b}
	}), delegate, 0, 0)
	bubble.enginesC.KeyMap = keymap.forList()
	bubble.enginesC.AdditionalShortHelpKeys = keymap.ShortHelp
	bubble.enginesC.AdditionalFullHelpKeys = func() []bubblesKey.Binding {
		return keymap.FullHelp()[0]
	}
	bubble.enginesC.Title = "Engines"
	bubble.enginesC.Styles.Title = lipgloss.NewStyle().Foreground(style.Base).Background(style.AccentColor).Padding(0, 1)
	bubble.enginesC.SetShowStatusBar(false)
	bubble.enginesC.SetFilteringEnabled(false)

	if w, h, err := util.TerminalSize(); err == nil {
		bubble.resize(w, h)
	}

	return &bubble
}
