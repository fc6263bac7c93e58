package player

import (
	"time"

	"github.com/playbridge/playbridge/internal/periodic"
)

// Sampler is what the position monitor reads on every tick.
type Sampler interface {
	State() VideoState
	CurrentPosition() time.Duration
	BufferedPosition() time.Duration
}

// PositionMonitor samples position while the player is playing and emits
// PositionChanged once per interval.
type PositionMonitor struct {
	task    *periodic.Task
	sampler Sampler
	emitter *Emitter
	onTick  func(PositionChanged)
}

// NewPositionMonitor creates a stopped monitor. onTick, if not nil, runs on every
// tick with the fresh sample regardless of state, before anything is emitted.
func NewPositionMonitor(s Sampler, e *Emitter, interval time.Duration, onTick func(PositionChanged)) *PositionMonitor {
	m := &PositionMonitor{sampler: s, emitter: e, onTick: onTick}
	m.task = periodic.New(interval, m.tick)
	return m
}

func (m *PositionMonitor) tick() {
	sample := PositionChanged{
		Position:         m.sampler.CurrentPosition(),
		BufferedPosition: m.sampler.BufferedPosition(),
	}

	if m.onTick != nil {
		m.onTick(sample)
	}

	if m.sampler.State() == StatePlaying {
		m.emitter.PositionChanged(sample)
	}
}

// Start begins sampling at interval.
func (m *PositionMonitor) Start(interval time.Duration) {
	m.task.SetInterval(interval)
	m.task.Start()
}

// Stop halts sampling. No tick runs once Stop returns.
func (m *PositionMonitor) Stop() {
	m.task.Stop()
}

// Close stops sampling for good; later calls to Start are ignored.
func (m *PositionMonitor) Close() {
	m.task.Close()
}

// Running reports whether the monitor is sampling.
func (m *PositionMonitor) Running() bool {
	return m.task.Running()
}
