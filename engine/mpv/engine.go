// Package mpv is an item-status engine driving an mpv process over its JSON IPC.
//
// Network sources are handed to mpv through a loopback network.Proxy, so every
// fetch mpv makes passes the player's instrumented client.
package mpv

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/network"
	"github.com/playbridge/playbridge/player/itemstatus"
	"github.com/playbridge/playbridge/where"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
	quitTimeout       = 3 * time.Second
)

var (
	ErrClosed            = errors.New("mpv: engine closed")
	ErrUnsupportedScheme = errors.New("mpv: unsupported scheme")
	ErrPlayback          = errors.New("mpv: playback failed")
)

// Option configures an Engine.
type Option func(*Engine)

// WithBinary sets the mpv executable.
func WithBinary(binary string) Option {
	return func(e *Engine) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithArgs appends arguments to the mpv command line. Arguments that are not
// --options are dropped.
func WithArgs(args ...string) Option {
	return func(e *Engine) {
		for _, arg := range args {
			if !strings.HasPrefix(arg, "--") {
				e.log.Warnf("ignoring mpv argument %q", arg)
				continue
			}
			e.args = append(e.args, arg)
		}
	}
}

// WithSocket attaches to an mpv already listening on socket instead of
// spawning one. Close then stops playback but leaves mpv running.
func WithSocket(socket string) Option {
	return func(e *Engine) {
		e.socket = socket
		e.attached = socket != ""
	}
}

// OptionsFromConfig reads the mpv.* configuration keys.
func OptionsFromConfig() []Option {
	return []Option{
		WithBinary(viper.GetString(key.MPVBinary)),
		WithArgs(viper.GetStringSlice(key.MPVArgs)...),
	}
}

// Factory returns an itemstatus.EngineFactory building engines with opts.
func Factory(opts ...Option) itemstatus.EngineFactory {
	return func(client *http.Client) (itemstatus.Engine, error) {
		return New(client, opts...)
	}
}

// Engine implements itemstatus.Engine and itemstatus.SeekCompleter.
//
// mpv is started on the first ReplaceCurrentItem. Observer callbacks run on
// the event listener goroutine, in the order mpv reported them.
type Engine struct {
	binary   string
	args     []string
	socket   string
	attached bool
	proxy    *network.Proxy
	log      *logrus.Entry

	// ipcMu serializes commands.
	ipcMu  sync.Mutex
	nextID atomic.Int64

	startMu  sync.Mutex
	started  bool
	cmd      *exec.Cmd
	exited   chan struct{}
	listener *eventListener

	mu             sync.Mutex
	observer       itemstatus.Observer
	status         itemstatus.ItemStatus
	itemErr        error
	playable       bool
	paused         bool
	pausedForCache bool
	seeking        bool
	eof            bool
	timeControl    itemstatus.TimeControlStatus
	position       time.Duration
	buffered       time.Duration
	duration       time.Duration
	seekWaiters    []*seekWaiter
	controls       bool
	closed         bool
}

var (
	_ itemstatus.Engine        = (*Engine)(nil)
	_ itemstatus.SeekCompleter = (*Engine)(nil)
)

// New creates an engine whose network sources are fetched through client.
func New(client *http.Client, opts ...Option) (*Engine, error) {
	proxy, err := network.NewProxy(client.Transport)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		binary:   "mpv",
		proxy:    proxy,
		log:      log.Component("mpv"),
		paused:   true,
		duration: -1,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Socket returns the IPC socket path, empty until mpv was started.
func (e *Engine) Socket() string {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	return e.socket
}

func (e *Engine) ensureStarted() error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.started {
		return nil
	}

	if !e.attached {
		if err := e.spawn(); err != nil {
			return err
		}
	}

	listener, err := listen(e.socket, e.handle, e.log)
	if err != nil {
		e.stopProcess()
		return err
	}

	e.listener = listener
	e.started = true
	return nil
}

func (e *Engine) spawn() error {
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Errorf("generate socket name: %w", err)
	}
	e.socket = filepath.Join(where.Temp(), fmt.Sprintf("mpv-%x.sock", randomBytes))

	e.mu.Lock()
	osc := lo.Ternary(e.controls, "yes", "no")
	e.mu.Unlock()

	// User arguments come last so mpv.conf and mpv.args keep the final say,
	// except for the socket and idle mode the engine depends on.
	args := []string{
		"--no-terminal",
		"--really-quiet",
		"--force-window=yes",
		"--pause=yes",
		"--osc=" + osc,
	}
	args = append(args, e.args...)
	args = append(args,
		fmt.Sprintf("--input-ipc-server=%s", e.socket),
		"--idle=yes",
	)

	e.cmd = exec.Command(e.binary, args...)
	e.cmd.SysProcAttr = sysProcAttr()
	e.cmd.Stdout = nil
	e.cmd.Stderr = nil
	e.cmd.Stdin = nil

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	e.exited = make(chan struct{})
	go func(cmd *exec.Cmd, exited chan struct{}) {
		_ = cmd.Wait()
		close(exited)
	}(e.cmd, e.exited)

	if err := e.waitForSocket(); err != nil {
		select {
		case <-e.exited:
		default:
			e.log.Warnf("killing mpv: socket never became ready")
			_ = killProcess(e.cmd)
		}
		_ = os.Remove(e.socket)
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	e.log.Infof("started %s with socket %s", e.binary, e.socket)
	return nil
}

// waitForSocket polls until the IPC socket is accepting connections.
func (e *Engine) waitForSocket() error {
	for i := 0; i < socketWaitRetries; i++ {
		time.Sleep(socketWaitDelay)

		select {
		case <-e.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		default:
		}

		conn, err := net.Dial("unix", e.socket)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", e.socket, socketWaitRetries)
}

// stopProcess quits a spawned mpv, killing it when it does not comply.
func (e *Engine) stopProcess() {
	if e.attached || e.cmd == nil {
		return
	}

	_, _ = e.sendCommand("quit")

	select {
	case <-e.exited:
	case <-time.After(quitTimeout):
		_ = killProcess(e.cmd)
		<-e.exited
	}

	_ = os.Remove(e.socket)
}

// mediaTarget turns a source into what loadfile is given.
func (e *Engine) mediaTarget(source *url.URL) (string, error) {
	switch source.Scheme {
	case "http", "https":
		return e.proxy.URL(source).String(), nil
	case "file":
		p := filepath.Clean(filepath.FromSlash(source.Path))
		if strings.HasPrefix(p, "-") {
			return "", fmt.Errorf("mpv: path %q looks like a flag", p)
		}
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, source.Scheme)
	}
}

// sanitizeTitle cleans up a title for the window
func sanitizeTitle(title string) string {
	t := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ", "\x00", "").Replace(title)
	return strings.TrimSpace(t)
}

func (e *Engine) SetObserver(o itemstatus.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

func (e *Engine) ReplaceCurrentItem(source *url.URL) error {
	target, err := e.mediaTarget(source)
	if err != nil {
		return err
	}

	if e.isClosed() {
		return ErrClosed
	}
	if err := e.ensureStarted(); err != nil {
		return err
	}

	e.mu.Lock()
	e.status = itemstatus.ItemUnknown
	e.itemErr = nil
	e.playable = false
	e.eof = false
	e.pausedForCache = false
	e.position = 0
	e.buffered = 0
	e.duration = -1
	dones := e.takeSeekDonesLocked()
	e.mu.Unlock()

	for _, done := range dones {
		done(false)
	}

	if title := sanitizeTitle(path.Base(source.Path)); title != "" && title != "." && title != "/" {
		if _, err := e.sendCommand("set_property", "force-media-title", title); err != nil {
			e.log.Debugf("set title: %v", err)
		}
	}

	if _, err := e.sendCommand("loadfile", target, "replace"); err != nil {
		return fmt.Errorf("loadfile: %w", err)
	}
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) ItemStatus() itemstatus.ItemStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) ItemError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.itemErr
}

func (e *Engine) Playable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playable
}

func (e *Engine) LikelyToKeepUp() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == itemstatus.ItemReadyToPlay && !e.pausedForCache
}

func (e *Engine) TimeControlStatus() itemstatus.TimeControlStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeControl
}

func (e *Engine) Play() {
	e.setPause(false)
}

func (e *Engine) Pause() {
	e.setPause(true)
}

func (e *Engine) setPause(pause bool) {
	if !e.running() {
		return
	}
	if _, err := e.sendCommand("set_property", "pause", pause); err != nil {
		e.log.Warnf("set pause %t: %v", pause, err)
	}
}

func (e *Engine) running() bool {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	return e.started && !e.isClosed()
}

func (e *Engine) Seek(position time.Duration) error {
	if !e.running() {
		return ErrClosed
	}
	_, err := e.sendCommand("seek", seconds(position), "absolute+exact")
	return err
}

// seekWaiter is one completion registered by SeekWithCompletion.
type seekWaiter struct {
	done func(finished bool)
}

// SeekWithCompletion calls done on the next playback restart. mpv coalesces
// seeks, so one restart finishes every seek issued before it.
func (e *Engine) SeekWithCompletion(position time.Duration, done func(finished bool)) error {
	waiter := &seekWaiter{done: done}

	e.mu.Lock()
	e.seekWaiters = append(e.seekWaiters, waiter)
	e.mu.Unlock()

	if err := e.Seek(position); err != nil {
		e.mu.Lock()
		e.seekWaiters = lo.Without(e.seekWaiters, waiter)
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Engine) Seeking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seeking
}

// CancelPendingSeeks reports pending seeks as interrupted. mpv has no way to
// abort one, so playback may still land on the last target.
func (e *Engine) CancelPendingSeeks() {
	e.mu.Lock()
	dones := e.takeSeekDonesLocked()
	e.mu.Unlock()

	for _, done := range dones {
		done(false)
	}
}

func (e *Engine) takeSeekDonesLocked() []func(bool) {
	dones := lo.Map(e.seekWaiters, func(w *seekWaiter, _ int) func(bool) { return w.done })
	e.seekWaiters = nil
	return dones
}

func (e *Engine) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Engine) BufferedTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return max(e.buffered, e.position)
}

func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// SetShowsPlaybackControls toggles mpv's on-screen controller.
func (e *Engine) SetShowsPlaybackControls(show bool) {
	e.mu.Lock()
	e.controls = show
	e.mu.Unlock()

	if !e.running() {
		return
	}
	if _, err := e.sendCommand("set_property", "osc", show); err != nil {
		e.log.Debugf("set osc: %v", err)
	}
}

// Close stops the listener and quits mpv. It must not be called from an
// observer callback.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.observer = nil
	dones := e.takeSeekDonesLocked()
	e.mu.Unlock()

	for _, done := range dones {
		done(false)
	}

	e.startMu.Lock()
	started := e.started
	e.startMu.Unlock()

	if started {
		if e.attached {
			_, _ = e.sendCommand("stop")
		}
		e.listener.Stop()
		e.stopProcess()
	}

	return e.proxy.Close()
}

func (e *Engine) notify(fn func(o itemstatus.Observer)) {
	e.mu.Lock()
	o := e.observer
	e.mu.Unlock()

	if o != nil {
		fn(o)
	}
}

// handle runs on the listener goroutine for every event line.
func (e *Engine) handle(msg ipcMessage) {
	switch msg.Event {
	case "property-change":
		e.propertyChanged(msg.Name, msg.Data)

	case "file-loaded":
		playable := e.trackCount() != 0

		// duration only reports changes, so a file as long as the last one
		// would otherwise stay unknown.
		total, known := e.durationProperty()

		e.mu.Lock()
		e.status = itemstatus.ItemReadyToPlay
		e.playable = playable
		if known {
			e.duration = total
		}
		e.mu.Unlock()

		e.notify(func(o itemstatus.Observer) { o.ItemStatusChanged(itemstatus.ItemReadyToPlay) })

	case "end-file":
		e.endFile(msg)

	case "seek":
		e.mu.Lock()
		e.seeking = true
		e.mu.Unlock()

	case "playback-restart":
		e.mu.Lock()
		e.seeking = false
		dones := e.takeSeekDonesLocked()
		e.mu.Unlock()

		for _, done := range dones {
			done(true)
		}

	case "log-message":
		if msg.Level == "error" || msg.Level == "fatal" {
			err := fmt.Errorf("mpv: %s: %s", msg.Prefix, strings.TrimSpace(msg.Text))
			e.notify(func(o itemstatus.Observer) { o.ErrorLogEntry(err) })
		}
	}
}

func (e *Engine) endFile(msg ipcMessage) {
	switch msg.Reason {
	case "eof":
		e.mu.Lock()
		e.eof = true
		e.mu.Unlock()

		e.notify(func(o itemstatus.Observer) { o.DidPlayToEnd() })

	case "error":
		err := fmt.Errorf("%w: %s", ErrPlayback, lo.Ternary(msg.FileError != "", msg.FileError, "unknown error"))

		e.mu.Lock()
		loading := e.status == itemstatus.ItemUnknown
		if loading {
			e.status = itemstatus.ItemFailed
			e.itemErr = err
		}
		e.mu.Unlock()

		if loading {
			e.notify(func(o itemstatus.Observer) { o.ItemStatusChanged(itemstatus.ItemFailed) })
		} else {
			e.notify(func(o itemstatus.Observer) { o.FailedToPlayToEnd(err) })
		}

	default:
		// stop, quit and redirect end an item the engine already replaced
	}
}

func (e *Engine) trackCount() int {
	data, err := e.sendCommand("get_property", "track-list/count")
	if err != nil {
		e.log.Warnf("track count: %v", err)
		return -1
	}
	count, ok := data.(float64)
	if !ok {
		return -1
	}
	return int(count)
}

func (e *Engine) durationProperty() (time.Duration, bool) {
	data, err := e.sendCommand("get_property", "duration")
	if err != nil {
		return 0, false
	}
	return duration(data)
}

func (e *Engine) propertyChanged(name string, data any) {
	var notices []func(o itemstatus.Observer)

	e.mu.Lock()
	switch name {
	case "pause":
		e.paused, _ = data.(bool)
	case "paused-for-cache":
		waiting, _ := data.(bool)
		if waiting != e.pausedForCache {
			e.pausedForCache = waiting
			notices = append(notices, lo.Ternary(waiting,
				itemstatus.Observer.PlaybackBufferEmpty,
				itemstatus.Observer.PlaybackLikelyToKeepUp,
			))
		}
	case "demuxer-cache-idle":
		if idle, _ := data.(bool); idle && e.status == itemstatus.ItemReadyToPlay {
			notices = append(notices, itemstatus.Observer.PlaybackBufferFull)
		}
	case "seeking":
		e.seeking, _ = data.(bool)
	case "eof-reached":
		e.eof, _ = data.(bool)
	case "time-pos":
		if d, ok := duration(data); ok {
			e.position = max(d, 0)
		}
	case "duration":
		if d, ok := duration(data); ok {
			e.duration = d
		} else {
			e.duration = -1
		}
	case "demuxer-cache-time":
		if d, ok := duration(data); ok {
			e.buffered = d
		}
	}

	status := e.timeControlLocked()
	if status != e.timeControl {
		e.timeControl = status
		notices = append(notices, func(o itemstatus.Observer) { o.TimeControlStatusChanged(status) })
	}
	e.mu.Unlock()

	for _, n := range notices {
		e.notify(n)
	}
}

func (e *Engine) timeControlLocked() itemstatus.TimeControlStatus {
	switch {
	case e.paused:
		return itemstatus.TimePaused
	case e.pausedForCache:
		return itemstatus.TimeWaiting
	default:
		return itemstatus.TimePlaying
	}
}
