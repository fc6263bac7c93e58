package itemstatus

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/playbridge/playbridge/player"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

// fakeEngine holds item properties set by the test and notifies its observer
// the way a property-observing engine would.
type fakeEngine struct {
	mu          sync.Mutex
	observer    Observer
	client      *http.Client
	items       []*url.URL
	status      ItemStatus
	itemErr     error
	playable    bool
	keepUp      bool
	timeControl TimeControlStatus
	seeking     bool
	position    time.Duration
	duration    time.Duration
	seeks       []time.Duration
	seekErr     error
	cancelled   int
	controls    bool
	closed      int
	sampled     int

	// When set, ReplaceCurrentItem signals replacing and blocks until resume
	// is closed.
	replacing chan struct{}
	resume    chan struct{}
}

func (f *fakeEngine) SetObserver(o Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observer = o
}

func (f *fakeEngine) obs() Observer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observer
}

func (f *fakeEngine) notify(fn func(o Observer)) {
	if o := f.obs(); o != nil {
		fn(o)
	}
}

func (f *fakeEngine) ReplaceCurrentItem(source *url.URL) error {
	if f.replacing != nil {
		close(f.replacing)
		<-f.resume
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, source)
	f.status = ItemUnknown
	f.keepUp = false
	return nil
}

func (f *fakeEngine) itemCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *fakeEngine) ItemStatus() ItemStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) ItemError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itemErr
}

func (f *fakeEngine) Playable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playable
}

func (f *fakeEngine) LikelyToKeepUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keepUp
}

func (f *fakeEngine) TimeControlStatus() TimeControlStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeControl
}

func (f *fakeEngine) setTimeControl(s TimeControlStatus) {
	f.mu.Lock()
	f.timeControl = s
	f.mu.Unlock()
	f.notify(func(o Observer) { o.TimeControlStatusChanged(s) })
}

func (f *fakeEngine) Play()  { f.setTimeControl(TimePlaying) }
func (f *fakeEngine) Pause() { f.setTimeControl(TimePaused) }

func (f *fakeEngine) Seek(position time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekErr != nil {
		return f.seekErr
	}
	f.seeks = append(f.seeks, position)
	if !f.seeking {
		f.position = position
	}
	return nil
}

func (f *fakeEngine) seekList() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.seeks...)
}

func (f *fakeEngine) Seeking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seeking
}

func (f *fakeEngine) CancelPendingSeeks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	f.seeking = false
}

func (f *fakeEngine) CurrentTime() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampled++
	return f.position
}

func (f *fakeEngine) samples() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sampled
}

func (f *fakeEngine) BufferedTime() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position + 10*time.Second
}

func (f *fakeEngine) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeEngine) SetShowsPlaybackControls(show bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = show
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeEngine) ready(playable bool) {
	f.mu.Lock()
	f.status = ItemReadyToPlay
	f.playable = playable
	f.mu.Unlock()
	f.notify(func(o Observer) { o.ItemStatusChanged(ItemReadyToPlay) })
}

func (f *fakeEngine) failItem(err error) {
	f.mu.Lock()
	f.status = ItemFailed
	f.itemErr = err
	f.mu.Unlock()
	f.notify(func(o Observer) { o.ItemStatusChanged(ItemFailed) })
}

func (f *fakeEngine) setKeepUp(keepUp bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepUp = keepUp
}

// completingEngine reports every seek through its completion func.
type completingEngine struct {
	*fakeEngine
	dones []func(bool)
}

func (c *completingEngine) SeekWithCompletion(position time.Duration, done func(bool)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks = append(c.seeks, position)
	c.position = position
	c.dones = append(c.dones, done)
	return nil
}

func (c *completingEngine) complete(i int, finished bool) {
	c.mu.Lock()
	done := c.dones[i]
	c.mu.Unlock()
	done(finished)
}

type recorder struct {
	mu        sync.Mutex
	states    []player.VideoState
	buffering []bool
	errors    []error
	streamed  []int64
}

func (r *recorder) listener() player.Listener {
	return player.Listener{
		OnVideoStateChanged: func(s player.VideoState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnBuffering: func(b bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.buffering = append(r.buffering, b)
		},
		OnPlaybackError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, err)
		},
		OnStreamingResponse: func(s player.StreamingResponse) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.streamed = append(r.streamed, s.ContentLength)
		},
	}
}

func (r *recorder) statesCopy() []player.VideoState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]player.VideoState(nil), r.states...)
}

func (r *recorder) errorsCopy() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

var stream = lo.Must(url.Parse("https://cdn.example.com/master.m3u8"))

func leaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

func TestPlayer(t *testing.T) {
	defer leaks(t)

	Convey("Given a player over an item-status engine", t, func() {
		engine := &fakeEngine{duration: time.Minute}
		p, err := New(func(client *http.Client) (Engine, error) {
			engine.client = client
			return engine, nil
		}, player.Options{AutoPlay: true, ShowDefaultControls: true, UpdateIntervalInSeconds: 0.005})
		So(err, ShouldBeNil)
		defer func() { So(p.Dispose(), ShouldBeNil) }()

		rec := &recorder{}
		p.Subscribe(rec.listener())

		load := func(ctx context.Context) chan player.VideoLoadStatus {
			out := make(chan player.VideoLoadStatus, 1)
			go func() {
				status, _ := p.FromURL(ctx, stream)
				out <- status
			}()
			return out
		}

		loaded := func() {
			done := load(context.Background())
			So(eventually(func() bool { return engine.itemCount() == 1 }), ShouldBeTrue)
			engine.ready(true)
			So(<-done, ShouldEqual, player.LoadLoaded)
			So(eventually(func() bool { return p.State() == player.StatePlaying }), ShouldBeTrue)
		}

		Convey("A playable item", func() {
			loaded()

			Convey("should confirm idle exactly once", func() {
				states := rec.statesCopy()
				So(states[0], ShouldEqual, player.StateIdle)
				So(lo.Count(states, player.StateIdle), ShouldEqual, 1)
			})

			Convey("should expose its duration and the controls", func() {
				So(p.DurationMilliseconds(), ShouldEqual, 60000)
				So(engine.controls, ShouldBeTrue)
			})

			Convey("should confirm a pause only once the engine reports it", func() {
				p.Pause()
				So(p.State(), ShouldEqual, player.StatePaused)
			})

			Convey("should keep ended when the engine pauses at the end", func() {
				engine.notify(func(o Observer) { o.DidPlayToEnd() })
				engine.Pause()
				So(p.State(), ShouldEqual, player.StateEnded)

				p.Play()
				So(p.State(), ShouldEqual, player.StatePlaying)
			})

			Convey("should derive buffering from the latest keep-up value", func() {
				engine.notify(func(o Observer) { o.PlaybackBufferEmpty() })
				engine.notify(func(o Observer) { o.PlaybackLikelyToKeepUp() })
				engine.setKeepUp(true)
				engine.notify(func(o Observer) { o.PlaybackLikelyToKeepUp() })
				engine.notify(func(o Observer) { o.PlaybackBufferFull() })

				rec.mu.Lock()
				defer rec.mu.Unlock()
				So(rec.buffering, ShouldResemble, []bool{true, false})
			})

			Convey("should report a failure to play to the end", func() {
				engine.notify(func(o Observer) { o.FailedToPlayToEnd(errors.New("stalled")) })
				So(p.State(), ShouldEqual, player.StateFailed)
				So(rec.errorsCopy(), ShouldHaveLength, 1)

				engine.Play()
				So(p.State(), ShouldEqual, player.StateFailed)
			})

			Convey("should forward engine log entries", func() {
				engine.notify(func(o Observer) { o.AccessLogEntry(1024) })
				engine.notify(func(o Observer) { o.ErrorLogEntry(errors.New("404")) })

				rec.mu.Lock()
				defer rec.mu.Unlock()
				So(rec.streamed, ShouldResemble, []int64{1024})
				So(rec.errors, ShouldHaveLength, 1)
			})

			Convey("Stop should pause and move to the end", func() {
				p.Stop()
				So(engine.TimeControlStatus(), ShouldEqual, TimePaused)
				So(engine.seekList(), ShouldResemble, []time.Duration{time.Minute})
			})

			Convey("Seeking past the end should settle on a sample at the duration", func() {
				ok, err := p.SeekTo(context.Background(), p.Duration()+10*time.Second)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(p.CurrentPosition(), ShouldEqual, time.Minute)
				So(p.IsSeeking(), ShouldBeFalse)
			})

			Convey("Cancelling a seek in progress should resolve it false", func() {
				engine.mu.Lock()
				engine.seeking = true
				engine.mu.Unlock()

				result := make(chan bool, 1)
				go func() {
					ok, _ := p.SeekTo(context.Background(), 30*time.Second)
					result <- ok
				}()
				So(eventually(func() bool { return len(engine.seekList()) == 1 }), ShouldBeTrue)
				So(p.IsSeeking(), ShouldBeTrue)

				p.CancelPendingSeeks()
				So(<-result, ShouldBeFalse)
				So(p.IsSeeking(), ShouldBeFalse)
			})
		})

		Convey("An unplayable item should resolve unplayable and not autoplay", func() {
			done := load(context.Background())
			So(eventually(func() bool { return engine.itemCount() == 1 }), ShouldBeTrue)
			engine.ready(false)

			So(<-done, ShouldEqual, player.LoadUnplayable)
			So(engine.TimeControlStatus(), ShouldEqual, TimePaused)
			So(p.State(), ShouldEqual, player.StatePaused)
		})

		Convey("A failed item should resolve failed with its cause", func() {
			done := load(context.Background())
			So(eventually(func() bool { return engine.itemCount() == 1 }), ShouldBeTrue)
			engine.failItem(errors.New("no such host"))

			So(<-done, ShouldEqual, player.LoadFailed)
			So(p.State(), ShouldEqual, player.StateFailed)

			errs := rec.errorsCopy()
			So(errs, ShouldHaveLength, 1)
			So(errors.Is(errs[0], ErrItemFailed), ShouldBeTrue)
			So(p.Duration(), ShouldEqual, 0)
		})

		Convey("Cancelling a load before the item is ready", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := load(ctx)
			So(eventually(func() bool { return engine.itemCount() == 1 }), ShouldBeTrue)
			cancel()

			So(<-done, ShouldEqual, player.LoadTimeout)

			Convey("should let the next load supersede it", func() {
				next := load(context.Background())
				So(eventually(func() bool { return engine.itemCount() == 2 }), ShouldBeTrue)
				engine.ready(true)
				So(<-next, ShouldEqual, player.LoadLoaded)
			})
		})

		Convey("Disposing with a load pending", func() {
			done := load(context.Background())
			So(eventually(func() bool { return engine.itemCount() == 1 }), ShouldBeTrue)

			So(p.Dispose(), ShouldBeNil)
			So(p.Dispose(), ShouldBeNil)

			So(<-done, ShouldEqual, player.LoadFailed)
			So(engine.closed, ShouldEqual, 1)
			So(engine.obs(), ShouldBeNil)
		})
	})
}

func TestPlayerWithSeekCompletion(t *testing.T) {
	defer leaks(t)

	Convey("Given an engine that completes its seeks", t, func() {
		engine := &completingEngine{fakeEngine: &fakeEngine{duration: time.Minute}}
		p, err := New(func(*http.Client) (Engine, error) {
			return engine, nil
		}, player.Options{UpdateIntervalInSeconds: 0.005})
		So(err, ShouldBeNil)
		defer func() { So(p.Dispose(), ShouldBeNil) }()

		done := make(chan player.VideoLoadStatus, 1)
		go func() {
			status, _ := p.FromURL(context.Background(), stream)
			done <- status
		}()
		So(eventually(func() bool { return engine.itemCount() == 1 }), ShouldBeTrue)
		engine.ready(true)
		So(<-done, ShouldEqual, player.LoadLoaded)

		seek := func(to time.Duration) chan bool {
			out := make(chan bool, 1)
			go func() {
				ok, _ := p.SeekTo(context.Background(), to)
				out <- ok
			}()
			return out
		}

		Convey("A superseded seek should not be settled by its own late completion", func() {
			first := seek(10 * time.Second)
			So(eventually(func() bool { return len(engine.seekList()) == 1 }), ShouldBeTrue)
			second := seek(20 * time.Second)
			So(eventually(func() bool { return len(engine.seekList()) == 2 }), ShouldBeTrue)

			So(<-first, ShouldBeFalse)

			engine.complete(0, true)
			So(p.IsSeeking(), ShouldBeTrue)

			engine.complete(1, true)
			So(<-second, ShouldBeTrue)
			So(p.IsSeeking(), ShouldBeFalse)
		})

		Convey("An interrupted seek should resolve false", func() {
			result := seek(10 * time.Second)
			So(eventually(func() bool { return len(engine.seekList()) == 1 }), ShouldBeTrue)

			engine.complete(0, false)
			So(<-result, ShouldBeFalse)
		})
	})
}

func TestDisposeDuringReplace(t *testing.T) {
	defer leaks(t)

	Convey("Given an engine still replacing its item when the player is disposed", t, func() {
		engine := &fakeEngine{
			duration:  time.Minute,
			replacing: make(chan struct{}),
			resume:    make(chan struct{}),
		}
		p, err := New(func(client *http.Client) (Engine, error) {
			return engine, nil
		}, player.Options{UpdateIntervalInSeconds: 0.002})
		So(err, ShouldBeNil)

		done := make(chan player.VideoLoadStatus, 1)
		go func() {
			status, _ := p.FromURL(context.Background(), stream)
			done <- status
		}()

		<-engine.replacing
		So(p.Dispose(), ShouldBeNil)
		close(engine.resume)

		Convey("The load should fail and no sampling should resume", func() {
			So(<-done, ShouldEqual, player.LoadFailed)
			So(p.monitor.Running(), ShouldBeFalse)

			count := engine.samples()
			time.Sleep(20 * time.Millisecond)
			So(engine.samples(), ShouldEqual, count)
			So(p.monitor.Running(), ShouldBeFalse)
		})
	})
}
