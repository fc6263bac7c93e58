package mpv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ipcCommand is the JSON structure sent to mpv's IPC socket.
type ipcCommand struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// ipcMessage is any line mpv writes: a reply carries request_id and error,
// an event carries event and its fields.
type ipcMessage struct {
	RequestID int64  `json:"request_id"`
	Error     string `json:"error"`
	Data      any    `json:"data"`

	Event     string `json:"event"`
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
	FileError string `json:"file_error"`
	Prefix    string `json:"prefix"`
	Level     string `json:"level"`
	Text      string `json:"text"`
}

const (
	maxRetries   = 3
	retryDelay   = 100 * time.Millisecond
	dialTimeout  = time.Second
	readDeadline = 2 * time.Second
)

// CommandError is an error reply from mpv. Commands failing this way are not retried.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mpv: %s: %s", e.Command, e.Message)
}

// sendCommand sends a JSON-IPC command on a fresh connection, retrying
// transient connection errors.
func (e *Engine) sendCommand(command ...any) (any, error) {
	e.ipcMu.Lock()
	defer e.ipcMu.Unlock()

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}

		result, err := doSendCommand(e.socket, e.nextID.Add(1), command)
		if err == nil {
			return result, nil
		}

		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("ipc command failed after %d attempts: %w", maxRetries, lastErr)
}

// doSendCommand performs a single IPC command attempt. mpv broadcasts events to
// every client, so lines are read until the reply with our request id.
func doSendCommand(socket string, id int64, command []any) (any, error) {
	conn, err := net.DialTimeout("unix", socket, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if err := writeCommand(conn, id, command); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event != "" || msg.RequestID != id {
			continue
		}

		if msg.Error != "" && msg.Error != "success" {
			return nil, &CommandError{Command: fmt.Sprint(command[0]), Message: msg.Error}
		}
		return msg.Data, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return nil, fmt.Errorf("read: %w", io.ErrUnexpectedEOF)
}

func writeCommand(w io.Writer, id int64, command []any) error {
	payload, err := json.Marshal(ipcCommand{Command: command, RequestID: id})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	// mpv requires newline-delimited JSON
	if _, err := w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

// duration converts a property value in seconds. ok is false for null and
// non-numeric values.
func duration(data any) (time.Duration, bool) {
	f, ok := data.(float64)
	if !ok {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}
