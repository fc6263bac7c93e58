package inline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/playbridge/playbridge/player"
	"github.com/samber/lo"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
)

type fakePlayer struct {
	player.VideoPlayer
	emitter *player.Emitter

	mu       sync.Mutex
	status   player.VideoLoadStatus
	state    player.VideoState
	position time.Duration
	seeks    []time.Duration

	// onPlay runs synchronously inside Play.
	onPlay func(f *fakePlayer)
}

func newFakePlayer(status player.VideoLoadStatus) *fakePlayer {
	return &fakePlayer{emitter: player.NewEmitter(), status: status}
}

func (f *fakePlayer) Subscribe(l player.Listener) func() {
	return f.emitter.Subscribe(l)
}

func (f *fakePlayer) FromURL(ctx context.Context, _ *url.URL) (player.VideoLoadStatus, error) {
	if f.status == player.LoadTimeout {
		<-ctx.Done()
		return player.LoadTimeout, nil
	}

	if f.status == player.LoadLoaded {
		f.setState(player.StateIdle)
	}
	return f.status, nil
}

func (f *fakePlayer) SeekTo(_ context.Context, position time.Duration) (bool, error) {
	f.mu.Lock()
	f.seeks = append(f.seeks, position)
	f.position = position
	f.mu.Unlock()
	return true, nil
}

func (f *fakePlayer) Play() {
	f.setState(player.StatePlaying)
	if f.onPlay != nil {
		f.onPlay(f)
	}
}

func (f *fakePlayer) Pause() { f.setState(player.StatePaused) }
func (f *fakePlayer) Stop()  { f.setState(player.StateIdle) }

func (f *fakePlayer) setState(s player.VideoState) {
	f.mu.Lock()
	changed := f.state != s
	f.state = s
	f.mu.Unlock()

	if changed {
		f.emitter.VideoStateChanged(s)
	}
}

func (f *fakePlayer) State() player.VideoState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePlayer) CurrentPosition() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakePlayer) DurationMilliseconds() float64 { return 10_000 }

func records(buf *bytes.Buffer) []Record {
	var out []Record
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var r Record
		lo.Must0(json.Unmarshal(scanner.Bytes(), &r))
		out = append(out, r)
	}
	return out
}

func events(rs []Record) []string {
	return lo.Map(rs, func(r Record, _ int) string { return r.Event })
}

func TestRun(t *testing.T) {
	Convey("Given a source that plays to the end", t, func() {
		p := newFakePlayer(player.LoadLoaded)
		p.onPlay = func(f *fakePlayer) {
			f.emitter.StreamingResponse(player.StreamingResponse{ContentLength: 2048})
			f.emitter.Buffering(true)
			f.emitter.PositionChanged(player.PositionChanged{Position: 5 * time.Second, BufferedPosition: 8 * time.Second})
			f.emitter.Buffering(false)
			f.setState(player.StateEnded)
		}

		var buf bytes.Buffer
		source := lo.Must(url.Parse("https://example.com/index.m3u8"))
		options := &Options{
			Out:    &buf,
			Json:   true,
			Player: p,
			Load:   FromURL(source),
			Start:  mo.Some(3 * time.Second),
		}

		Convey("Run should report every event as a JSON line", func() {
			So(Run(context.Background(), options), ShouldBeNil)

			rs := records(&buf)
			So(events(rs), ShouldResemble, []string{
				"state", "load", "seek", "state", "streaming", "buffering", "position", "buffering", "state", "done",
			})

			So(rs[1].Status, ShouldEqual, "Loaded")
			So(*rs[2].Seeked, ShouldBeTrue)
			So(rs[2].PositionMs, ShouldEqual, 3000)
			So(rs[4].Bytes, ShouldEqual, 2048)
			So(*rs[5].Buffering, ShouldBeTrue)
			So(rs[6].PositionMs, ShouldEqual, 5000)
			So(rs[6].BufferedMs, ShouldEqual, 8000)
			So(rs[9].State, ShouldEqual, "Ended")
			So(p.seeks, ShouldResemble, []time.Duration{3 * time.Second})
		})

		Convey("Plain output should be one line per event", func() {
			options.Json = false
			So(Run(context.Background(), options), ShouldBeNil)

			text := buf.String()
			So(text, ShouldContainSubstring, "load      Loaded, 10s")
			So(text, ShouldContainSubstring, "streaming 2.0 kB")
			So(text, ShouldContainSubstring, "position  5s / 10s, buffered 8s")
			So(text, ShouldContainSubstring, "done      Ended at 3s")
		})
	})

	Convey("Given a source that never ends", t, func() {
		p := newFakePlayer(player.LoadLoaded)
		var buf bytes.Buffer
		options := &Options{
			Out:    &buf,
			Json:   true,
			Player: p,
			Load:   FromURL(lo.Must(url.Parse("https://example.com/live.m3u8"))),
			For:    mo.Some(20 * time.Millisecond),
		}

		Convey("Run should pause once the For duration elapsed", func() {
			So(Run(context.Background(), options), ShouldBeNil)
			rs := records(&buf)
			So(rs[len(rs)-1].State, ShouldEqual, "Paused")
		})

		Convey("Run should stop when the context is cancelled", func() {
			options.For = mo.None[time.Duration]()
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			So(Run(ctx, options), ShouldBeNil)
			So(p.State(), ShouldEqual, player.StateIdle)
		})
	})

	Convey("A load that is not Loaded should fail the run", t, func() {
		p := newFakePlayer(player.LoadUnplayable)
		var buf bytes.Buffer
		err := Run(context.Background(), &Options{Out: &buf, Json: true, Player: p, Load: FromURL(&url.URL{Scheme: "https", Host: "x"})})

		So(errors.Is(err, ErrNotLoaded), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "Unplayable")
		So(events(records(&buf)), ShouldResemble, []string{"load"})
	})

	Convey("A load timeout should resolve to Timeout", t, func() {
		p := newFakePlayer(player.LoadTimeout)
		var buf bytes.Buffer
		err := Run(context.Background(), &Options{
			Out:         &buf,
			Json:        true,
			Player:      p,
			Load:        FromURL(&url.URL{Scheme: "https", Host: "x"}),
			LoadTimeout: 10 * time.Millisecond,
		})

		So(errors.Is(err, ErrNotLoaded), ShouldBeTrue)
		So(records(&buf)[0].Status, ShouldEqual, "Timeout")
	})

	Convey("A playback failure should be returned", t, func() {
		boom := errors.New("decoder gave up")
		p := newFakePlayer(player.LoadLoaded)
		p.onPlay = func(f *fakePlayer) {
			f.emitter.PlaybackError(boom)
			f.setState(player.StateFailed)
		}

		var buf bytes.Buffer
		err := Run(context.Background(), &Options{Out: &buf, Player: p, Load: FromURL(&url.URL{Scheme: "https", Host: "x"})})
		So(errors.Is(err, ErrPlayback), ShouldBeTrue)
		So(errors.Is(err, boom), ShouldBeTrue)
		So(buf.String(), ShouldContainSubstring, "decoder gave up")
	})
}

func TestFromResource(t *testing.T) {
	Convey("Resource names need an extension", t, func() {
		_, err := FromResource("intro")
		So(err, ShouldNotBeNil)

		_, err = FromResource("intro.mp4")
		So(err, ShouldBeNil)
	})
}

func TestSchema(t *testing.T) {
	Convey("The schema should describe a record", t, func() {
		data := lo.Must(json.Marshal(Schema()))
		So(string(data), ShouldContainSubstring, `"position_ms"`)
		So(string(data), ShouldContainSubstring, `"Unplayable"`)
		So(string(data), ShouldContainSubstring, "playbridge inline record")
	})
}

func TestParseSource(t *testing.T) {
	Convey("Sources should be routed by their shape", t, func() {
		p := newFakePlayer(player.LoadLoaded)

		load, err := ParseSource("https://example.com/index.m3u8")
		So(err, ShouldBeNil)
		status, _ := load(context.Background(), p)
		So(status, ShouldEqual, player.LoadLoaded)

		_, err = ParseSource("resource:intro")
		So(err, ShouldNotBeNil)

		_, err = ParseSource("  ")
		So(err, ShouldNotBeNil)

		_, err = ParseSource("/tmp/clip.mp4")
		So(err, ShouldBeNil)
	})
}
