// Package inline plays one source without a user interface and reports every
// player event as text or JSON lines.
package inline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/player"
)

var (
	// ErrNotLoaded is returned when the load did not end in LoadLoaded.
	ErrNotLoaded = errors.New("source not loaded")
	// ErrPlayback is returned when playback ended in StateFailed.
	ErrPlayback = errors.New("playback failed")
)

// Run loads the source, optionally seeks, plays until the media ends, fails,
// the For duration elapses or ctx is cancelled. The player is not disposed.
func Run(ctx context.Context, options *Options) error {
	if options.Player == nil || options.Load == nil {
		return errors.New("inline: player and loader are required")
	}

	if options.Out == nil {
		options.Out = os.Stdout
	}

	out := &writer{out: options.Out, json: options.Json}
	p := options.Player

	var (
		finished = make(chan struct{})
		once     sync.Once
		mu       sync.Mutex
		lastErr  error
	)

	unsubscribe := p.Subscribe(player.Listener{
		OnPositionChanged: func(ev player.PositionChanged) {
			out.write(Record{
				Event:      "position",
				PositionMs: milliseconds(ev.Position),
				BufferedMs: milliseconds(ev.BufferedPosition),
				DurationMs: p.DurationMilliseconds(),
			})
		},
		OnVideoStateChanged: func(state player.VideoState) {
			out.write(Record{Event: "state", State: state.String()})
			if state == player.StateEnded || state == player.StateFailed {
				once.Do(func() { close(finished) })
			}
		},
		OnPlaybackError: func(err error) {
			mu.Lock()
			lastErr = err
			mu.Unlock()
			out.write(Record{Event: "error", Error: err.Error()})
		},
		OnStreamingResponse: func(ev player.StreamingResponse) {
			out.write(Record{Event: "streaming", Bytes: ev.ContentLength})
		},
		OnBuffering: func(isBuffering bool) {
			out.write(Record{Event: "buffering", Buffering: &isBuffering})
		},
	})
	defer unsubscribe()

	loadCtx := ctx
	if options.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, options.LoadTimeout)
		defer cancel()
	}

	status, err := options.Load(loadCtx, p)
	record := Record{Event: "load", Status: status.String(), DurationMs: p.DurationMilliseconds()}
	if err != nil {
		record.Error = err.Error()
	}
	out.write(record)

	if status != player.LoadLoaded {
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotLoaded, status, err)
		}
		return fmt.Errorf("%w: %s", ErrNotLoaded, status)
	}

	if start, ok := options.Start.Get(); ok {
		seeked, err := p.SeekTo(ctx, start)
		record := Record{Event: "seek", Seeked: &seeked, PositionMs: milliseconds(p.CurrentPosition())}
		if err != nil {
			record.Error = err.Error()
		}
		out.write(record)
		if err != nil {
			return err
		}
	}

	p.Play()

	var timeout <-chan time.Time
	if d, ok := options.For.Get(); ok {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-finished:
	case <-timeout:
		log.Debugf("inline: stopping after %s", options.For.MustGet())
		p.Pause()
	case <-ctx.Done():
		p.Stop()
	}

	state := p.State()
	out.write(Record{
		Event:      "done",
		State:      state.String(),
		PositionMs: milliseconds(p.CurrentPosition()),
		DurationMs: p.DurationMilliseconds(),
	})

	if err := out.err(); err != nil {
		return err
	}

	if state == player.StateFailed {
		mu.Lock()
		defer mu.Unlock()
		if lastErr != nil {
			return fmt.Errorf("%w: %w", ErrPlayback, lastErr)
		}
		return ErrPlayback
	}

	return nil
}

// writer serializes records from concurrent listener callbacks.
type writer struct {
	mu    sync.Mutex
	out   io.Writer
	json  bool
	first error
}

func (w *writer) write(r Record) {
	if r.At.IsZero() {
		r.At = time.Now()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.first != nil {
		return
	}

	var err error
	if w.json {
		err = json.NewEncoder(w.out).Encode(r)
	} else {
		_, err = fmt.Fprintln(w.out, r.text())
	}

	if err != nil {
		w.first = err
	}
}

func (w *writer) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.first
}

func (r Record) text() string {
	var body string
	switch r.Event {
	case "load":
		body = r.Status
		if r.DurationMs > 0 {
			body += ", " + formatMs(r.DurationMs)
		}
	case "seek":
		body = fmt.Sprintf("%t at %s", *r.Seeked, formatMs(r.PositionMs))
	case "position":
		body = fmt.Sprintf("%s / %s, buffered %s", formatMs(r.PositionMs), formatMs(r.DurationMs), formatMs(r.BufferedMs))
	case "state":
		body = r.State
	case "buffering":
		body = fmt.Sprintf("%t", *r.Buffering)
	case "streaming":
		body = humanize.Bytes(uint64(max(r.Bytes, 0)))
	case "done":
		body = fmt.Sprintf("%s at %s", r.State, formatMs(r.PositionMs))
	}

	if r.Error != "" {
		if body != "" {
			body += ": "
		}
		body += r.Error
	}

	return fmt.Sprintf("%s %-9s %s", r.At.Format(time.TimeOnly), r.Event, body)
}

func formatMs(ms float64) string {
	if ms < 0 {
		return "?"
	}
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Second).String()
}
