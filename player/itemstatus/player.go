package itemstatus

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/network"
	"github.com/playbridge/playbridge/player"
	"github.com/sirupsen/logrus"
)

// ErrItemFailed wraps the reason an item could not be loaded.
var ErrItemFailed = errors.New("item failed")

// settleSamples is how many samples without a native seek in progress it takes
// to settle a seek whose target was never reached exactly.
const settleSamples = 3

// Player implements player.VideoPlayer over one item-status Engine.
type Player struct {
	engine          Engine
	completer       SeekCompleter
	observer        *observer
	instrumentation *network.Instrumentation

	emitter   *player.Emitter
	state     *player.StateMachine
	loads     *player.LoadCoordinator
	seeks     *player.SeekCoordinator
	monitor   *player.PositionMonitor
	buffering *player.BufferingDetector

	mu      sync.Mutex
	options player.Options
	// settle and target belong to the pending seek on engines without seek
	// completion; samples counts ticks taken since it was issued.
	settle  func(bool)
	target  time.Duration
	samples int

	disposed    atomic.Bool
	disposeOnce sync.Once
	disposeErr  error

	log *logrus.Entry
}

var _ player.VideoPlayer = (*Player)(nil)

// New creates the engine through factory, handing it a client that reports to
// the new player, and observes it.
func New(factory EngineFactory, options player.Options, netOpts ...network.Option) (*Player, error) {
	p := &Player{
		emitter: player.NewEmitter(),
		options: options,
		log:     log.Component("itemstatus"),
	}

	p.state = player.NewStateMachine(p.emitter)
	p.loads = player.NewLoadCoordinator()
	p.seeks = player.NewSeekCoordinator(p.emitter)
	p.buffering = player.NewBufferingDetector(p.emitter)
	p.monitor = player.NewPositionMonitor(p, p.emitter, options.UpdateInterval(), p.sampled)
	p.instrumentation = network.NewInstrumentation(network.Hooks{
		OnStreamingResponse: p.streamed,
		OnError:             p.emitter.PlaybackError,
	}, netOpts...)

	engine, err := factory(p.instrumentation.Client())
	if err != nil {
		p.instrumentation.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	p.engine = engine
	p.completer, _ = engine.(SeekCompleter)
	p.observer = &observer{p: p}
	engine.SetObserver(p.observer)
	engine.SetShowsPlaybackControls(options.ShowDefaultControls)

	return p, nil
}

func (p *Player) streamed(n int64) {
	p.emitter.StreamingResponse(player.StreamingResponse{ContentLength: n})
}

func (p *Player) FromURL(ctx context.Context, source *url.URL) (player.VideoLoadStatus, error) {
	if p.disposed.Load() {
		return player.LoadFailed, player.ErrDisposed
	}

	if err := player.ValidateURL(source); err != nil {
		return player.LoadFailed, err
	}

	p.monitor.Stop()
	cell := p.loads.Begin(ctx)

	p.mu.Lock()
	p.settle = nil
	p.mu.Unlock()
	p.seeks.Settle(false)
	p.buffering.Reset()

	p.engine.Pause()
	p.state.Reset(player.StateIdle)

	if err := p.engine.ReplaceCurrentItem(source); err != nil {
		p.log.Warnf("replace item with %s: %v", source.Redacted(), err)
		p.emitter.PlaybackError(err)
		p.state.Confirm(player.StateFailed)
		p.loads.Resolve(player.LoadFailed)
	} else {
		p.monitor.Start(p.Options().UpdateInterval())
	}

	status := p.loads.Finish(cell)
	p.log.Infof("load %s: %s", source.Redacted(), status)

	if p.disposed.Load() {
		return status, nil
	}

	options := p.Options()
	p.engine.SetShowsPlaybackControls(options.ShowDefaultControls)
	if options.AutoPlay && status == player.LoadLoaded {
		p.Play()
	}

	return status, nil
}

func (p *Player) FromLocal(ctx context.Context, path string) (player.VideoLoadStatus, error) {
	source, err := player.LocalURL(path)
	if err != nil {
		return player.LoadFailed, err
	}
	return p.FromURL(ctx, source)
}

func (p *Player) FromResource(ctx context.Context, name, extension string) (player.VideoLoadStatus, error) {
	source, err := player.ResourceURL(name, extension)
	if err != nil {
		return player.LoadFailed, err
	}
	return p.FromURL(ctx, source)
}

func (p *Player) Play() {
	if !p.disposed.Load() {
		p.engine.Play()
	}
}

func (p *Player) Pause() {
	if !p.disposed.Load() {
		p.engine.Pause()
	}
}

// Stop pauses and moves to the end of the item. The engine reports the end
// once it gets there.
func (p *Player) Stop() {
	if p.disposed.Load() {
		return
	}

	p.engine.Pause()

	end := p.Duration()
	p.emitter.PositionChanged(player.PositionChanged{Position: end, BufferedPosition: p.BufferedPosition()})
	if err := p.engine.Seek(end); err != nil {
		p.log.Warnf("stop: seek to end: %v", err)
	}
}

func (p *Player) SeekTo(ctx context.Context, position time.Duration) (bool, error) {
	if p.disposed.Load() {
		return false, player.ErrDisposed
	}

	return p.seeks.SeekWith(ctx, position, p.Duration(), p.BufferedPosition(), p.issueSeek)
}

func (p *Player) issueSeek(target time.Duration, settle func(bool)) error {
	if p.completer != nil {
		return p.completer.SeekWithCompletion(target, settle)
	}

	p.mu.Lock()
	p.settle, p.target, p.samples = settle, target, 0
	p.mu.Unlock()

	if err := p.engine.Seek(target); err != nil {
		return err
	}

	// Without sampling nothing would ever settle the seek.
	if !p.monitor.Running() {
		p.takeSettle()(true)
	}
	return nil
}

// takeSettle detaches the pending settle func. The result is never nil.
func (p *Player) takeSettle() func(bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	settle := p.settle
	p.settle = nil
	if settle == nil {
		return func(bool) {}
	}
	return settle
}

// sampled runs on every monitor tick before the position is emitted.
func (p *Player) sampled(sample player.PositionChanged) {
	p.deriveState()

	if p.completer != nil || p.engine.Seeking() {
		return
	}

	p.mu.Lock()
	if p.settle == nil {
		p.mu.Unlock()
		return
	}
	p.samples++
	reached := (sample.Position-p.target).Abs() <= p.options.UpdateInterval() || p.samples >= settleSamples
	p.mu.Unlock()

	if reached {
		p.takeSettle()(true)
	}
}

// deriveState confirms what a ready item is doing. Ended holds until the
// engine plays again and Failed holds until the next load.
func (p *Player) deriveState() {
	if p.engine.ItemStatus() != ItemReadyToPlay {
		return
	}

	current := p.state.State()
	if current == player.StateFailed {
		return
	}

	switch p.engine.TimeControlStatus() {
	case TimePlaying:
		p.state.Confirm(player.StatePlaying)
	case TimePaused:
		if current != player.StateEnded {
			p.state.Confirm(player.StatePaused)
		}
	}
}

func (p *Player) Forward(ctx context.Context, step time.Duration) (bool, error) {
	return player.Forward(ctx, p, step)
}

func (p *Player) Backward(ctx context.Context, step time.Duration) (bool, error) {
	return player.Backward(ctx, p, step)
}

func (p *Player) Authorize(value string) {
	p.instrumentation.Authorize(value)
}

func (p *Player) PreLoad(source string, sizeInBytes int) error {
	return player.PreLoad(source, sizeInBytes)
}

// CancelPendingSeeks asks the engine to abandon seeks in progress. The pending
// seek resolves to false.
func (p *Player) CancelPendingSeeks() {
	if p.disposed.Load() {
		return
	}

	p.engine.CancelPendingSeeks()
	if p.completer == nil {
		p.takeSettle()(false)
	}
}

func (p *Player) Duration() time.Duration {
	if !p.loads.Loaded() {
		return 0
	}
	return max(p.engine.Duration(), 0)
}

func (p *Player) DurationMilliseconds() float64 {
	return float64(p.Duration()) / float64(time.Millisecond)
}

func (p *Player) CurrentPosition() time.Duration {
	return player.Clamp(p.engine.CurrentTime(), p.Duration())
}

func (p *Player) BufferedPosition() time.Duration {
	return player.Clamp(p.engine.BufferedTime(), p.Duration())
}

func (p *Player) State() player.VideoState {
	return p.state.State()
}

func (p *Player) IsSeeking() bool {
	return p.seeks.IsSeeking()
}

func (p *Player) Options() player.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.options
}

func (p *Player) SetOptions(options player.Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options = options
}

func (p *Player) Subscribe(l player.Listener) func() {
	return p.emitter.Subscribe(l)
}

// Dispose stops sampling, detaches from the engine, fails whatever is still
// pending and closes the engine, once.
func (p *Player) Dispose() error {
	p.disposeOnce.Do(func() {
		p.disposed.Store(true)

		p.monitor.Close()
		p.instrumentation.Close()
		p.engine.SetObserver(nil)

		p.loads.Close()
		p.seeks.Close()

		p.disposeErr = p.engine.Close()
		p.emitter.Close()
		p.log.Debug("disposed")
	})

	return p.disposeErr
}

// observer keeps the engine notifications off the exported API.
type observer struct {
	p *Player
}

func (o *observer) ItemStatusChanged(status ItemStatus) {
	p := o.p

	switch status {
	case ItemReadyToPlay:
		if p.engine.Playable() {
			p.loads.Resolve(player.LoadLoaded)
		} else {
			p.loads.Resolve(player.LoadUnplayable)
		}
		p.deriveState()
	case ItemFailed:
		err := ErrItemFailed
		if cause := p.engine.ItemError(); cause != nil {
			err = fmt.Errorf("%w: %w", ErrItemFailed, cause)
		}

		p.log.Errorf("engine error: %v", err)
		p.loads.Resolve(player.LoadFailed)
		p.emitter.PlaybackError(err)
		p.state.Confirm(player.StateFailed)
	}
}

func (o *observer) TimeControlStatusChanged(TimeControlStatus) {
	o.p.deriveState()
}

func (o *observer) PlaybackBufferEmpty()    { o.evaluateBuffering() }
func (o *observer) PlaybackLikelyToKeepUp() { o.evaluateBuffering() }
func (o *observer) PlaybackBufferFull()     { o.evaluateBuffering() }

// evaluateBuffering reads the engine while holding the detector, so whichever
// notification is evaluated last reflects the latest engine state.
func (o *observer) evaluateBuffering() {
	o.p.buffering.Evaluate(func() bool { return !o.p.engine.LikelyToKeepUp() })
}

func (o *observer) DidPlayToEnd() {
	o.p.state.Confirm(player.StateEnded)
}

func (o *observer) FailedToPlayToEnd(err error) {
	p := o.p

	p.log.Errorf("failed to play to end: %v", err)
	p.emitter.PlaybackError(err)
	p.state.Confirm(player.StateFailed)
}

func (o *observer) AccessLogEntry(bytes int64) {
	o.p.streamed(bytes)
}

func (o *observer) ErrorLogEntry(err error) {
	o.p.log.Warnf("engine error log: %v", err)
	o.p.emitter.PlaybackError(err)
}
