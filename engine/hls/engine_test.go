package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playbridge/playbridge/drm"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/player"
	"github.com/playbridge/playbridge/player/statecallback"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

const (
	segmentBytes  = 1000
	mediaPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:1
#EXTINF:0.1,
seg0.ts
#EXTINF:0.1,
seg1.ts
#EXTINF:0.1,
seg2.ts
#EXT-X-ENDLIST
`
)

// origin serves a master playlist, its media playlist and three segments.
type origin struct {
	*httptest.Server

	mu       sync.Mutex
	auth     []string
	hits     map[string]int
	truncate string
	keyed    bool
}

func newOrigin() *origin {
	o := &origin{hits: make(map[string]int)}
	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	return o
}

func (o *origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.auth = append(o.auth, r.Header.Get("Authorization"))
	o.hits[r.URL.Path]++
	hit := o.hits[r.URL.Path]
	truncate := o.truncate == r.URL.Path && hit == 1
	keyed := o.keyed
	o.mu.Unlock()

	switch {
	case r.URL.Path == "/master.m3u8":
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nmedia.m3u8\n")
	case r.URL.Path == "/media.m3u8":
		if keyed {
			fmt.Fprint(w, strings.Replace(mediaPlaylist, "#EXT-X-TARGETDURATION:1", `#EXT-X-KEY:METHOD=AES-128,URI="key.bin"`, 1))
			return
		}
		fmt.Fprint(w, mediaPlaylist)
	case strings.HasPrefix(r.URL.Path, "/seg"):
		if truncate {
			conn, rw, err := w.(http.Hijacker).Hijack()
			if err != nil {
				return
			}
			fmt.Fprintf(rw, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", segmentBytes)
			_, _ = rw.Write(make([]byte, 100))
			_ = rw.Flush()
			_ = conn.Close()
			return
		}
		_, _ = w.Write(make([]byte, segmentBytes))
	default:
		http.NotFound(w, r)
	}
}

func (o *origin) authorizations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.auth...)
}

type events struct {
	mu     sync.Mutex
	states []player.VideoState
	log    []string
	errs   []error
}

func (e *events) listener() player.Listener {
	return player.Listener{
		OnVideoStateChanged: func(s player.VideoState) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.states = append(e.states, s)
		},
		OnStreamingResponse: func(s player.StreamingResponse) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.log = append(e.log, fmt.Sprintf("stream %d", s.ContentLength))
		},
		OnPlaybackError: func(err error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.log = append(e.log, "error")
			e.errs = append(e.errs, err)
		},
	}
}

func (e *events) snapshot() ([]player.VideoState, []string, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]player.VideoState(nil), e.states...),
		append([]string(nil), e.log...),
		append([]error(nil), e.errs...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestEngine(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)

	Convey("Given an hls engine behind the state-callback adapter", t, func() {
		server := newOrigin()
		defer server.Close()

		var engine *Engine
		options := player.Options{UpdateIntervalInSeconds: 0.01}
		build := func(opts ...Option) *statecallback.Player {
			opts = append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
			p, err := statecallback.New(func(client *http.Client) (statecallback.Engine, error) {
				engine = New(client, opts...)
				return engine, nil
			}, options)
			So(err, ShouldBeNil)
			return p
		}

		source := lo.Must(url.Parse(server.URL + "/master.m3u8"))
		ev := &events{}

		Convey("Loading a valid stream", func() {
			p := build()
			defer func() { So(p.Dispose(), ShouldBeNil) }()
			p.Subscribe(ev.listener())

			p.Authorize("Bearer X")
			status, err := p.FromURL(context.Background(), source)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, player.LoadLoaded)

			Convey("should confirm idle once and expose the duration", func() {
				states, _, _ := ev.snapshot()
				So(states[0], ShouldEqual, player.StateIdle)
				So(lo.Count(states, player.StateIdle), ShouldEqual, 1)
				So(p.DurationMilliseconds(), ShouldEqual, 300)
			})

			Convey("should authorize every request", func() {
				So(eventually(func() bool { return engine.Loaded() == 3*segmentBytes }), ShouldBeTrue)
				auth := server.authorizations()
				So(auth, ShouldHaveLength, 5)
				So(lo.Uniq(auth), ShouldResemble, []string{"Bearer X"})
			})

			Convey("should report the size of each fetch", func() {
				So(eventually(func() bool { return engine.Loaded() == 3*segmentBytes }), ShouldBeTrue)
				_, log, _ := ev.snapshot()
				So(lo.Count(log, fmt.Sprintf("stream %d", segmentBytes)), ShouldEqual, 3)
			})

			Convey("should resolve a seek past the end at the duration", func() {
				So(eventually(func() bool { return engine.Loaded() == 3*segmentBytes }), ShouldBeTrue)

				ok, err := p.SeekTo(context.Background(), p.Duration()+10*time.Second)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(p.CurrentPosition(), ShouldEqual, 300*time.Millisecond)
				So(p.State(), ShouldEqual, player.StateEnded)
			})

			Convey("should play through to the end", func() {
				p.Play()
				So(eventually(func() bool { return p.State() == player.StateEnded }), ShouldBeTrue)
				So(p.CurrentPosition(), ShouldEqual, p.Duration())
			})

			Convey("should return to idle when stopped", func() {
				p.Stop()
				So(p.State(), ShouldEqual, player.StateIdle)
				So(engine.State(), ShouldEqual, statecallback.EngineIdle)
			})
		})

		Convey("A segment interrupted mid-transfer", func() {
			server.mu.Lock()
			server.truncate = "/seg1.ts"
			server.mu.Unlock()

			p := build()
			defer func() { So(p.Dispose(), ShouldBeNil) }()
			p.Subscribe(ev.listener())

			status, _ := p.FromURL(context.Background(), source)
			So(status, ShouldEqual, player.LoadLoaded)
			So(eventually(func() bool { return engine.Loaded() == 3*segmentBytes }), ShouldBeTrue)

			Convey("should report the partial bytes, then the error, then recover", func() {
				_, log, errs := ev.snapshot()
				i := lo.IndexOf(log, "stream 100")
				So(i, ShouldBeGreaterThanOrEqualTo, 0)
				So(log[i+1], ShouldEqual, "error")
				So(errs, ShouldHaveLength, 1)
				So(p.State(), ShouldNotEqual, player.StateFailed)
			})
		})

		Convey("A missing playlist should fail the load", func() {
			p := build(WithRetries(0))
			defer func() { So(p.Dispose(), ShouldBeNil) }()
			p.Subscribe(ev.listener())

			status, _ := p.FromURL(context.Background(), lo.Must(url.Parse(server.URL+"/missing.m3u8")))
			So(status, ShouldEqual, player.LoadFailed)
			So(p.State(), ShouldEqual, player.StateFailed)

			_, _, errs := ev.snapshot()
			So(errs, ShouldHaveLength, 1)
			var statusErr *StatusError
			So(errors.As(errs[0], &statusErr), ShouldBeTrue)
			So(statusErr.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("An encrypted playlist should fail at the license exchange", func() {
			server.mu.Lock()
			server.keyed = true
			server.mu.Unlock()

			p := build(WithKeyProvider(&drm.LicenseClient{URL: "https://license.example.com"}))
			defer func() { So(p.Dispose(), ShouldBeNil) }()
			p.Subscribe(ev.listener())

			status, _ := p.FromURL(context.Background(), source)
			So(status, ShouldEqual, player.LoadFailed)

			_, _, errs := ev.snapshot()
			So(errs, ShouldHaveLength, 1)
			So(errors.Is(errs[0], drm.ErrNotImplemented), ShouldBeTrue)
		})

		Convey("A cancelled load should time out and leave the engine reusable", func() {
			p := build()
			defer func() { So(p.Dispose(), ShouldBeNil) }()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			status, _ := p.FromURL(ctx, source)
			So(status, ShouldEqual, player.LoadTimeout)

			status, _ = p.FromURL(context.Background(), source)
			So(status, ShouldEqual, player.LoadLoaded)
		})
	})
}

func TestEngineLocal(t *testing.T) {
	Convey("Given a playlist on the local filesystem", t, func() {
		filesystem.SetMemMapFs()
		defer filesystem.SetOsFs()

		fs := filesystem.API()
		So(fs.MkdirAll("/media", 0o755), ShouldBeNil)
		So(fs.WriteFile("/media/index.m3u8", []byte(mediaPlaylist), 0o644), ShouldBeNil)
		for i := range 3 {
			So(fs.WriteFile(fmt.Sprintf("/media/seg%d.ts", i), make([]byte, segmentBytes), 0o644), ShouldBeNil)
		}

		var engine *Engine
		p, err := statecallback.New(func(client *http.Client) (statecallback.Engine, error) {
			engine = New(client)
			return engine, nil
		}, player.Options{})
		So(err, ShouldBeNil)
		defer func() { So(p.Dispose(), ShouldBeNil) }()

		Convey("It should load it without touching the network", func() {
			status, err := p.FromLocal(context.Background(), "/media/index.m3u8")
			So(err, ShouldBeNil)
			So(status, ShouldEqual, player.LoadLoaded)
			So(eventually(func() bool { return engine.Loaded() == 3*segmentBytes }), ShouldBeTrue)
		})

		Convey("A missing file should be rejected before the engine sees it", func() {
			_, err := p.FromLocal(context.Background(), "/media/missing.m3u8")
			So(errors.Is(err, player.ErrInvalidSource), ShouldBeTrue)
		})
	})
}

func TestEngineDirect(t *testing.T) {
	Convey("Given a bare engine", t, func() {
		e := New(http.DefaultClient)
		defer func() { So(e.Release(), ShouldBeNil) }()

		Convey("Seeking before anything is prepared should fail", func() {
			So(e.SeekTo(time.Second), ShouldEqual, ErrNotPrepared)
			So(e.Duration(), ShouldBeLessThan, 0)
		})

		Convey("Unsupported schemes should be refused", func() {
			err := e.Prepare(lo.Must(url.Parse("rtmp://example.com/live")))
			So(errors.Is(err, ErrUnsupportedScheme), ShouldBeTrue)
		})

		Convey("A released engine should refuse new sources", func() {
			So(e.Release(), ShouldBeNil)
			So(e.Prepare(lo.Must(url.Parse("https://example.com/a.m3u8"))), ShouldEqual, ErrReleased)
		})
	})
}
