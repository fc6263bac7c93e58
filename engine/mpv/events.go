package mpv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// observed are the properties the engine mirrors. observe_property binds to
// the connection it is sent on, so they are registered on the listener's own.
var observed = []string{
	"pause",
	"paused-for-cache",
	"seeking",
	"eof-reached",
	"time-pos",
	"duration",
	"demuxer-cache-time",
	"demuxer-cache-idle",
}

// eventListener keeps one persistent connection and hands every event line mpv
// writes on it to callback, in order, on a single goroutine.
type eventListener struct {
	conn     net.Conn
	callback func(ipcMessage)
	log      *logrus.Entry

	stopOnce sync.Once
	done     chan struct{}
}

func listen(socket string, callback func(ipcMessage), log *logrus.Entry) (*eventListener, error) {
	conn, err := net.DialTimeout("unix", socket, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("event listener connect: %w", err)
	}

	el := &eventListener{
		conn:     conn,
		callback: callback,
		log:      log,
		done:     make(chan struct{}),
	}

	// Replies to these arrive on the read loop and are skipped there.
	for i, name := range observed {
		if err := writeCommand(conn, 0, []any{"observe_property", i + 1, name}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("observe %s: %w", name, err)
		}
	}
	if err := writeCommand(conn, 0, []any{"request_log_messages", "error"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("request log messages: %w", err)
	}

	go el.readLoop()

	log.Debugf("event listener started on %s", socket)
	return el, nil
}

// readLoop ends when the connection is closed by Stop or by mpv exiting.
func (el *eventListener) readLoop() {
	defer close(el.done)

	scanner := bufio.NewScanner(el.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event == "" {
			continue
		}
		el.callback(msg)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		el.log.Warnf("event listener read error: %v", err)
	}
}

// Stop closes the connection and waits for the read loop to return. It must
// not be called from the callback.
func (el *eventListener) Stop() {
	el.stopOnce.Do(func() {
		el.conn.Close()
	})
	<-el.done
}
