// Package hls is a state-callback engine for HTTP Live Streaming sources.
//
// The engine resolves master playlists to their first variant, keeps segments
// fetched up to the forward buffer ahead of the playback clock and reports its
// coarse state to listeners. Segment bytes are fetched and counted, never decoded.
package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/playbridge/playbridge/config"
	"github.com/playbridge/playbridge/drm"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/player/statecallback"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var (
	ErrReleased          = errors.New("hls: engine released")
	ErrNotPrepared       = errors.New("hls: nothing prepared")
	ErrUnsupportedScheme = errors.New("hls: unsupported scheme")
)

// StatusError is a non-2xx response to a playlist or segment request.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hls: %s: status %d", e.URL, e.Code)
}

// Option configures an Engine.
type Option func(*Engine)

// WithForwardBuffer sets how far ahead of the playback position segments are fetched.
func WithForwardBuffer(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.forward = d
		}
	}
}

// WithRetries sets how many times a failed fetch is repeated.
func WithRetries(n int) Option {
	return func(e *Engine) {
		e.retries = max(n, 0)
	}
}

// WithRetryDelay sets the pause before the first retry; later retries wait longer.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.retryDelay = d
	}
}

// WithFs sets the filesystem file:// sources are read from.
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) {
		e.fs = fs
	}
}

// WithKeyProvider sets who resolves keys of encrypted playlists.
func WithKeyProvider(p drm.KeyProvider) Option {
	return func(e *Engine) {
		e.keys = p
	}
}

// OptionsFromConfig reads the hls.* configuration keys.
func OptionsFromConfig() []Option {
	return []Option{
		WithForwardBuffer(config.Duration(key.HLSForwardBuffer)),
		WithRetries(viper.GetInt(key.HLSRetryCount)),
	}
}

// Factory returns a statecallback.EngineFactory building engines with opts.
func Factory(opts ...Option) statecallback.EngineFactory {
	return func(client *http.Client) (statecallback.Engine, error) {
		return New(client, opts...), nil
	}
}

type noticeKind int

const (
	noticeState noticeKind = iota
	noticeError
	noticeSeek
)

// notice is a callback to deliver once the engine lock is released. State
// notices carry no state: listeners get the state current at delivery.
type notice struct {
	kind noticeKind
	err  error
}

// Engine implements statecallback.Engine.
type Engine struct {
	client     *http.Client
	fs         afero.Fs
	forward    time.Duration
	retries    int
	retryDelay time.Duration
	keys       drm.KeyProvider
	now        func() time.Time
	log        *logrus.Entry

	// prepareMu serializes Prepare, Stop and Release.
	prepareMu sync.Mutex
	wg        sync.WaitGroup
	wake      chan struct{}

	mu            sync.Mutex
	listeners     []statecallback.EngineListener
	state         statecallback.EngineState
	playWhenReady bool
	controller    bool
	playlist      *Playlist
	have          []bool
	base          time.Duration
	anchor        time.Time
	running       bool
	unacked       int
	gen           uint64
	cancel        context.CancelFunc
	released      bool
	loaded        int64
}

var _ statecallback.Engine = (*Engine)(nil)

// New creates an idle engine fetching through client.
func New(client *http.Client, opts ...Option) *Engine {
	e := &Engine{
		client:     client,
		fs:         filesystem.API(),
		forward:    2 * time.Minute,
		retries:    3,
		retryDelay: 250 * time.Millisecond,
		now:        time.Now,
		log:        log.Component("hls"),
		wake:       make(chan struct{}, 1),
		state:      statecallback.EngineIdle,
		cancel:     func() {},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.keys == nil {
		e.keys = drm.NewLicenseClient(client)
	}

	return e
}

func (e *Engine) AddListener(l statecallback.EngineListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) RemoveListener(l statecallback.EngineListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = lo.Without(e.listeners, l)
}

// Prepare starts loading source in the background. It must not be called from
// a listener.
func (e *Engine) Prepare(source *url.URL) error {
	switch source.Scheme {
	case "http", "https", "file":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, source.Scheme)
	}

	e.prepareMu.Lock()
	defer e.prepareMu.Unlock()

	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return ErrReleased
	}
	e.gen++
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()

	var notices []notice
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.cancel = cancel
	e.running = false
	e.playlist, e.have = nil, nil
	e.base, e.unacked, e.loaded = 0, 0, 0
	e.setStateLocked(statecallback.EngineBuffering, &notices)
	e.mu.Unlock()

	e.deliver(notices)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		cancel()
		return nil
	}

	e.wg.Add(1)
	go e.run(ctx, gen, source)
	return nil
}

func (e *Engine) SetPlayWhenReady(play bool) {
	e.mu.Lock()
	if e.playWhenReady == play {
		e.mu.Unlock()
		return
	}
	e.playWhenReady = play
	e.syncClockLocked()
	e.mu.Unlock()

	e.poke()
	e.deliver([]notice{{kind: noticeState}})
}

func (e *Engine) Stop() {
	e.prepareMu.Lock()
	defer e.prepareMu.Unlock()

	var notices []notice

	e.mu.Lock()
	e.gen++
	e.cancel()
	e.setStateLocked(statecallback.EngineIdle, &notices)
	e.playlist, e.have = nil, nil
	e.base, e.unacked = 0, 0
	e.mu.Unlock()

	e.deliver(notices)
}

// SeekTo moves the playback clock. OnSeekProcessed follows once the segment at
// position is fetched, which may be before SeekTo returns.
func (e *Engine) SeekTo(position time.Duration) error {
	var notices []notice

	e.mu.Lock()
	if e.playlist == nil || e.state == statecallback.EngineIdle {
		e.mu.Unlock()
		return ErrNotPrepared
	}

	position = max(position, 0)
	if e.playlist.Ended {
		position = min(position, e.playlist.Duration())
	}

	e.base = position
	if e.running {
		e.anchor = e.now()
	}
	e.unacked++
	e.updateLocked(&notices)
	e.mu.Unlock()

	e.poke()
	e.deliver(notices)
	return nil
}

func (e *Engine) State() statecallback.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) CurrentPosition() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *Engine) BufferedPosition() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bufferedLocked(e.positionLocked())
}

// Duration is negative until a playlist that cannot grow is loaded.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playlist == nil || !e.playlist.Ended {
		return -1
	}
	return e.playlist.Duration()
}

func (e *Engine) SetUseController(show bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controller = show
}

// UseController reports whether default controls were requested.
func (e *Engine) UseController() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controller
}

// Loaded returns the number of segment bytes fetched for the current source.
func (e *Engine) Loaded() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Playlist returns the media playlist being played, if loaded.
func (e *Engine) Playlist() (*Playlist, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playlist, e.playlist != nil
}

// Release stops the loader and forgets all listeners. Later calls are no-ops.
func (e *Engine) Release() error {
	e.prepareMu.Lock()
	defer e.prepareMu.Unlock()

	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.gen++
	e.cancel()
	e.listeners = nil
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Debug("released")
	return nil
}

func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) deliver(notices []notice) {
	if len(notices) == 0 {
		return
	}

	e.mu.Lock()
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()

	for _, n := range notices {
		switch n.kind {
		case noticeState:
			e.mu.Lock()
			play, state := e.playWhenReady, e.state
			e.mu.Unlock()

			for _, l := range listeners {
				l.OnPlayerStateChanged(play, state)
			}
		case noticeError:
			for _, l := range listeners {
				l.OnPlayerError(n.err)
			}
		case noticeSeek:
			for _, l := range listeners {
				l.OnSeekProcessed()
			}
		}
	}
}

func (e *Engine) setStateLocked(state statecallback.EngineState, notices *[]notice) {
	if e.state == state {
		return
	}

	if e.running {
		e.base = e.positionLocked()
		e.running = false
	}
	e.state = state
	e.syncClockLocked()
	*notices = append(*notices, notice{kind: noticeState})
}

// syncClockLocked runs the clock exactly while ready and asked to play.
func (e *Engine) syncClockLocked() {
	want := e.state == statecallback.EngineReady && e.playWhenReady
	if want == e.running {
		return
	}

	if e.running {
		e.base = e.positionLocked()
		e.running = false
	} else {
		e.anchor = e.now()
		e.running = true
	}
}

// positionLocked never runs past the fetched data.
func (e *Engine) positionLocked() time.Duration {
	if !e.running {
		return e.base
	}
	return min(e.base+e.now().Sub(e.anchor), e.bufferedLocked(e.base))
}

// bufferedLocked is the end of the fetched run of segments containing position.
func (e *Engine) bufferedLocked(position time.Duration) time.Duration {
	if e.playlist == nil {
		return position
	}

	end := position
	i := e.playlist.SegmentAt(position)
	for ; i >= 0 && i < len(e.have) && e.have[i]; i++ {
		end = e.playlist.Segments[i].End()
	}
	return end
}

// updateLocked moves between buffering, ready and ended according to the
// fetched data, and acknowledges seeks whose target became playable.
func (e *Engine) updateLocked(notices *[]notice) {
	if e.playlist == nil || e.state == statecallback.EngineIdle {
		return
	}

	position := e.positionLocked()
	atEnd := e.playlist.Ended && position >= e.playlist.Duration()
	playable := e.bufferedLocked(position) > position

	switch {
	case atEnd:
		e.setStateLocked(statecallback.EngineEnded, notices)
	case playable:
		e.setStateLocked(statecallback.EngineReady, notices)
	default:
		e.setStateLocked(statecallback.EngineBuffering, notices)
	}

	if e.unacked > 0 && (atEnd || playable) {
		for range e.unacked {
			*notices = append(*notices, notice{kind: noticeSeek})
		}
		e.unacked = 0
	}
}

// nextFetchLocked returns the first missing segment inside the forward buffer, or -1.
func (e *Engine) nextFetchLocked() int {
	position := e.positionLocked()
	horizon := position + max(e.forward, time.Millisecond)

	i := e.playlist.SegmentAt(position)
	if i < 0 {
		return -1
	}

	for ; i < len(e.playlist.Segments) && e.playlist.Segments[i].Start < horizon; i++ {
		if !e.have[i] {
			return i
		}
	}
	return -1
}

// waitLocked is how long the loader may sleep before the state or the fetch
// window can change on its own. Negative means until poked.
func (e *Engine) waitLocked() time.Duration {
	if !e.running {
		return -1
	}

	position := e.positionLocked()
	wait := e.bufferedLocked(position) - position

	horizon := position + e.forward
	for i, s := range e.playlist.Segments {
		if s.Start >= horizon && !e.have[i] {
			wait = min(wait, s.Start-horizon)
			break
		}
	}

	return max(wait, time.Millisecond)
}

func (e *Engine) run(ctx context.Context, gen uint64, source *url.URL) {
	defer e.wg.Done()

	playlist, err := e.load(ctx, source)
	if err != nil {
		if ctx.Err() == nil {
			e.fail(gen, err)
		}
		return
	}

	e.log.Debugf("%s: %d segments, %s", source.Redacted(), len(playlist.Segments), playlist.Duration())

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.playlist = playlist
	e.have = make([]bool, len(playlist.Segments))
	e.mu.Unlock()

	for {
		var notices []notice

		e.mu.Lock()
		if gen != e.gen {
			e.mu.Unlock()
			return
		}
		e.updateLocked(&notices)
		next := e.nextFetchLocked()
		wait := e.waitLocked()
		e.mu.Unlock()

		e.deliver(notices)

		if next >= 0 {
			n, err := e.fetchSegment(ctx, playlist.Segments[next].URI)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				e.fail(gen, err)
				return
			}

			e.mu.Lock()
			if gen == e.gen {
				e.have[next] = true
				e.loaded += n
			}
			e.mu.Unlock()
			continue
		}

		if !e.sleep(ctx, wait) {
			return
		}
	}
}

func (e *Engine) sleep(ctx context.Context, wait time.Duration) bool {
	var timeout <-chan time.Time
	if wait >= 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-e.wake:
		return true
	case <-timeout:
		return true
	}
}

// fail reports err and drops to idle, unless gen was superseded.
func (e *Engine) fail(gen uint64, err error) {
	notices := []notice{{kind: noticeError, err: err}}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.setStateLocked(statecallback.EngineIdle, &notices)
	e.mu.Unlock()

	e.log.Warn(err)
	e.deliver(notices)
}

// load fetches source and, for a master playlist, its first variant.
func (e *Engine) load(ctx context.Context, source *url.URL) (*Playlist, error) {
	playlist, err := e.fetchPlaylist(ctx, source)
	if err != nil {
		return nil, err
	}

	if playlist.Master() {
		variant := playlist.Variants[0]
		e.log.Debugf("variant %s (%d bps)", variant.URI.Redacted(), variant.Bandwidth)

		if playlist, err = e.fetchPlaylist(ctx, variant.URI); err != nil {
			return nil, err
		}
		if playlist.Master() {
			return nil, fmt.Errorf("hls: %s: variant is a master playlist", variant.URI.Redacted())
		}
	}

	if playlist.Key != nil {
		if _, err := e.keys.AcquireKey(ctx, *playlist.Key); err != nil {
			return nil, fmt.Errorf("hls: key: %w", err)
		}
	}

	return playlist, nil
}

func (e *Engine) fetchPlaylist(ctx context.Context, u *url.URL) (*Playlist, error) {
	var playlist *Playlist

	err := e.retry(ctx, u, func() error {
		body, err := e.open(ctx, u)
		if err != nil {
			return err
		}
		defer body.Close()

		playlist, err = Parse(body, u)
		return err
	})

	return playlist, err
}

func (e *Engine) fetchSegment(ctx context.Context, u *url.URL) (int64, error) {
	var n int64

	err := e.retry(ctx, u, func() error {
		body, err := e.open(ctx, u)
		if err != nil {
			return err
		}
		defer body.Close()

		n, err = io.Copy(io.Discard, body)
		return err
	})

	return n, err
}

// retry runs fn until it succeeds, a playlist turns out malformed, or the
// retries are used up.
func (e *Engine) retry(ctx context.Context, u *url.URL, fn func() error) error {
	var err error

	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.retryDelay * time.Duration(attempt)):
			}
		}

		if err = fn(); err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, ErrNotPlaylist) || errors.Is(err, fs.ErrNotExist) {
			break
		}

		e.log.Debugf("fetch %s, attempt %d: %v", u.Redacted(), attempt+1, err)
	}

	return fmt.Errorf("hls: fetch %s: %w", u.Redacted(), err)
}

func (e *Engine) open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if u.Scheme == "file" {
		return e.fs.Open(u.Path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &StatusError{URL: u.Redacted(), Code: resp.StatusCode}
	}

	return resp.Body, nil
}
