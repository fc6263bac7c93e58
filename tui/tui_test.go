package tui

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/playbridge/playbridge/backend"
	"github.com/playbridge/playbridge/inline"
	"github.com/playbridge/playbridge/internal/ui"
	"github.com/playbridge/playbridge/player"
	. "github.com/smartystreets/goconvey/convey"
)

type fakePlayer struct {
	player.VideoPlayer
	emitter *player.Emitter

	mu            sync.Mutex
	state         player.VideoState
	seeks         []time.Duration
	authorization string
	disposed      int
}

func (f *fakePlayer) Subscribe(l player.Listener) func() { return f.emitter.Subscribe(l) }

func (f *fakePlayer) FromURL(context.Context, *url.URL) (player.VideoLoadStatus, error) {
	return player.LoadLoaded, nil
}

func (f *fakePlayer) Authorize(value string) { f.authorization = value }

func (f *fakePlayer) setState(s player.VideoState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.emitter.VideoStateChanged(s)
}

func (f *fakePlayer) Play()  { f.setState(player.StatePlaying) }
func (f *fakePlayer) Pause() { f.setState(player.StatePaused) }
func (f *fakePlayer) Stop()  { f.setState(player.StateIdle) }

func (f *fakePlayer) State() player.VideoState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePlayer) SeekTo(_ context.Context, position time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, position)
	return position <= 10*time.Second, nil
}

func (f *fakePlayer) Duration() time.Duration         { return 10 * time.Second }
func (f *fakePlayer) CurrentPosition() time.Duration  { return 5 * time.Second }
func (f *fakePlayer) BufferedPosition() time.Duration { return 8 * time.Second }

func (f *fakePlayer) Dispose() error {
	f.disposed++
	f.emitter.Close()
	return nil
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestBubble(t *testing.T) {
	Convey("Given a dashboard over a fake engine", t, func() {
		var created []*fakePlayer
		fake := &backend.Backend{
			ID:   "fake",
			Name: "Fake",
			Create: func(player.Options) (player.VideoPlayer, error) {
				p := &fakePlayer{emitter: player.NewEmitter(), state: player.StateIdle}
				created = append(created, p)
				return p, nil
			},
		}

		Convey("Choosing an engine should ask for a source", func() {
			b := newBubble(&Options{Backends: []*backend.Backend{fake}})
			b.Init()
			So(b.state, ShouldEqual, engineState)

			b.Update(keyMsg("enter"))
			So(b.state, ShouldEqual, sourceState)
			So(b.backend, ShouldEqual, fake)
			So(b.inputC.Focused(), ShouldBeTrue)
			So(b.View(), ShouldContainSubstring, "Open Fake")

			Convey("and going back should return to the list", func() {
				b.Update(keyMsg("esc"))
				So(b.state, ShouldEqual, engineState)
			})
		})

		Convey("A preselected engine and source should start loading at once", func() {
			b := newBubble(&Options{
				Backend:       fake,
				Source:        "https://example.com/index.m3u8",
				Authorization: "Bearer X",
				SeekStep:      2 * time.Second,
			})
			b.resize(100, 30)
			b.Init()

			So(b.state, ShouldEqual, loadingState)
			So(created, ShouldHaveLength, 1)
			So(created[0].authorization, ShouldEqual, "Bearer X")
			So(b.View(), ShouldContainSubstring, "Loading https://example.com/index.m3u8")

			Convey("A loaded source should show the player", func() {
				b.Update(loadedMsg{load: 1, status: player.LoadLoaded})
				So(b.state, ShouldEqual, playerState)

				view := b.View()
				So(view, ShouldContainSubstring, "Now Playing")
				So(view, ShouldContainSubstring, "Idle")
				So(view, ShouldContainSubstring, "00:05 / 00:10")
				So(view, ShouldContainSubstring, "buffered to 00:08")

				Convey("p should toggle playback", func() {
					b.Update(keyMsg("p"))
					So(created[0].State(), ShouldEqual, player.StatePlaying)
					So(b.View(), ShouldContainSubstring, "Playing")

					b.Update(keyMsg("p"))
					So(created[0].State(), ShouldEqual, player.StatePaused)
				})

				Convey("right should seek one step ahead", func() {
					_, cmd := b.Update(keyMsg("right"))
					So(cmd, ShouldNotBeNil)

					msg := b.seek(5*time.Second + b.seekStep())()
					So(msg, ShouldResemble, seekedMsg{target: 7 * time.Second, ok: true})
					So(created[0].seeks, ShouldContain, 7*time.Second)
				})

				Convey("an incomplete seek should be reported", func() {
					_, cmd := b.Update(seekedMsg{target: time.Minute})
					So(cmd, ShouldNotBeNil)

					b.Update(ui.NotificationMsg("seek to 1m0s did not complete"))
					So(b.View(), ShouldContainSubstring, "did not complete")
				})

				Convey("engine events should be summarized", func() {
					created[0].emitter.Buffering(true)
					created[0].emitter.StreamingResponse(player.StreamingResponse{ContentLength: 2048})
					created[0].emitter.PlaybackError(errors.New("segment 3: 503"))

					view := b.View()
					So(view, ShouldContainSubstring, "buffering")
					So(view, ShouldContainSubstring, "2.0 kB received in 1 fetch")
					So(view, ShouldContainSubstring, "segment 3: 503")
				})

				Convey("esc should dispose the player", func() {
					b.Update(keyMsg("esc"))
					So(created[0].disposed, ShouldEqual, 1)
					So(b.state, ShouldEqual, sourceState)
					So(b.inputC.Value(), ShouldEqual, "https://example.com/index.m3u8")
				})
			})

			Convey("A failed load should dispose the player and show the error", func() {
				b.Update(loadedMsg{load: 1, status: player.LoadUnplayable})
				So(b.state, ShouldEqual, errorState)
				So(created[0].disposed, ShouldEqual, 1)
				So(errors.Is(b.lastError, inline.ErrNotLoaded), ShouldBeTrue)
				So(b.View(), ShouldContainSubstring, "Unplayable")
			})

			Convey("Going back should abandon the load", func() {
				b.Update(keyMsg("esc"))
				So(created[0].disposed, ShouldEqual, 1)
				So(b.state, ShouldEqual, sourceState)

				b.Update(loadedMsg{load: 1, status: player.LoadTimeout})
				So(b.state, ShouldEqual, sourceState)
				So(b.lastError, ShouldBeNil)
			})
		})
	})
}

func TestFormatDuration(t *testing.T) {
	Convey("Durations should render as a clock", t, func() {
		So(formatDuration(-1), ShouldEqual, "--:--")
		So(formatDuration(65*time.Second), ShouldEqual, "01:05")
		So(formatDuration(time.Hour+2*time.Second), ShouldEqual, "1:00:02")
	})
}
