package statecallback

import (
	"context"
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

// Player implements player.VideoPlayer over one state-callback Engine.
type Player struct {
	engine          Engine
	listener        *listener
	instrumentation *network.Instrumentation

	emitter   *player.Emitter
	state     *player.StateMachine
	loads     *player.LoadCoordinator
	seeks     *player.SeekCoordinator
	monitor   *player.PositionMonitor
	buffering *player.BufferingDetector

	mu      sync.Mutex
	options player.Options
	// unacked counts native seeks whose OnSeekProcessed has not arrived yet.
	unacked int

	disposed    atomic.Bool
	disposeOnce sync.Once
	disposeErr  error

	log *logrus.Entry
}

var _ player.VideoPlayer = (*Player)(nil)

// New creates the engine through factory, handing it a client that reports to
// the new player, and binds the two.
func New(factory EngineFactory, options player.Options, netOpts ...network.Option) (*Player, error) {
	p := &Player{
		emitter: player.NewEmitter(),
		options: options,
		log:     log.Component("statecallback"),
	}

	p.state = player.NewStateMachine(p.emitter)
	p.loads = player.NewLoadCoordinator()
	p.seeks = player.NewSeekCoordinator(p.emitter)
	p.buffering = player.NewBufferingDetector(p.emitter)
	p.monitor = player.NewPositionMonitor(p, p.emitter, options.UpdateInterval(), nil)
	p.instrumentation = network.NewInstrumentation(network.Hooks{
		OnStreamingResponse: func(n int64) {
			p.emitter.StreamingResponse(player.StreamingResponse{ContentLength: n})
		},
		OnError: p.emitter.PlaybackError,
	}, netOpts...)

	engine, err := factory(p.instrumentation.Client())
	if err != nil {
		p.instrumentation.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	p.engine = engine
	p.listener = &listener{p: p}
	engine.AddListener(p.listener)
	engine.SetUseController(options.ShowDefaultControls)

	return p, nil
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
	p.unacked = 0
	p.mu.Unlock()
	p.seeks.Settle(false)
	p.buffering.Reset()

	p.engine.SetPlayWhenReady(false)
	p.state.Reset(player.StateIdle)

	if err := p.engine.Prepare(source); err != nil {
		p.log.Warnf("prepare %s: %v", source.Redacted(), err)
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
	p.engine.SetUseController(options.ShowDefaultControls)
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
		p.engine.SetPlayWhenReady(true)
	}
}

func (p *Player) Pause() {
	if !p.disposed.Load() {
		p.engine.SetPlayWhenReady(false)
	}
}

func (p *Player) Stop() {
	if !p.disposed.Load() {
		p.engine.Stop()
	}
}

func (p *Player) SeekTo(ctx context.Context, position time.Duration) (bool, error) {
	if p.disposed.Load() {
		return false, player.ErrDisposed
	}

	return p.seeks.Seek(ctx, position, p.Duration(), p.BufferedPosition(), func(target time.Duration) error {
		p.mu.Lock()
		p.unacked++
		p.mu.Unlock()

		if err := p.engine.SeekTo(target); err != nil {
			p.mu.Lock()
			p.unacked--
			p.mu.Unlock()
			return err
		}
		return nil
	})
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

// CancelPendingSeeks is ignored: this engine family cannot abandon a seek it
// accepted, and the pending seek resolves when the engine acknowledges it.
func (p *Player) CancelPendingSeeks() {
	p.log.Debug("cancel pending seeks ignored")
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
	return player.Clamp(p.engine.CurrentPosition(), p.Duration())
}

func (p *Player) BufferedPosition() time.Duration {
	return player.Clamp(p.engine.BufferedPosition(), p.Duration())
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
// pending and releases the engine, once.
func (p *Player) Dispose() error {
	p.disposeOnce.Do(func() {
		p.disposed.Store(true)

		p.monitor.Close()
		p.instrumentation.Close()
		p.engine.RemoveListener(p.listener)

		p.loads.Close()
		p.seeks.Close()

		p.disposeErr = p.engine.Release()
		p.emitter.Close()
		p.log.Debug("disposed")
	})

	return p.disposeErr
}

// listener keeps the engine callbacks off the exported API.
type listener struct {
	p *Player
}

func (l *listener) OnPlayerStateChanged(playWhenReady bool, state EngineState) {
	p := l.p

	p.buffering.Evaluate(func() bool { return state == EngineBuffering })

	switch state {
	case EngineReady:
		p.loads.Resolve(player.LoadLoaded)
		if playWhenReady {
			p.state.Confirm(player.StatePlaying)
		} else {
			p.state.Confirm(player.StatePaused)
		}
	case EngineIdle:
		// An engine drops to idle after a fatal error; the failure stays visible.
		if p.state.State() != player.StateFailed {
			p.state.Confirm(player.StateIdle)
		}
	case EngineEnded:
		p.state.Confirm(player.StateEnded)
	}
}

func (l *listener) OnPlayerError(err error) {
	p := l.p

	p.log.Errorf("engine error: %v", err)
	p.loads.Resolve(player.LoadFailed)
	p.emitter.PlaybackError(err)
	p.state.Confirm(player.StateFailed)
}

func (l *listener) OnSeekProcessed() {
	p := l.p

	p.mu.Lock()
	if p.unacked > 0 {
		p.unacked--
	}
	settled := p.unacked == 0
	p.mu.Unlock()

	if settled {
		p.seeks.Settle(true)
	}
}
