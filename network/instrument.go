package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/playbridge/playbridge/constant"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/spf13/viper"
)

// StatusClientClosedRequest is the status of the neutral response handed back in
// place of a transport error.
const StatusClientClosedRequest = 499

// ErrTransport wraps every failure reported through Hooks.OnError.
var ErrTransport = errors.New("transport failure")

// DefaultMaxBuffered bounds how much of one response body is held in memory.
const DefaultMaxBuffered = 64 << 20

// Hooks receive what the instrumentation observes. Either may be nil.
type Hooks struct {
	// OnStreamingResponse gets the byte count of a finished fetch, or of the
	// partial transfer when it failed.
	OnStreamingResponse func(bytes int64)
	// OnError gets the cause of an interrupted or failed fetch, always after the
	// partial byte count for the same request.
	OnError func(err error)
}

// Instrumentation is a RoundTripper that observes every fetch made through it.
//
// Transport failures never reach the caller as errors: they are reported to the
// hooks and answered with an empty 499 response so engine retry logic sees an
// ordinary failed request. Requests whose own context was cancelled are answered
// the same way but not reported.
type Instrumentation struct {
	base        http.RoundTripper
	hooks       Hooks
	maxBuffered int64

	mu            sync.RWMutex
	authorization string
	userAgent     string

	closed atomic.Bool
}

// Option configures an Instrumentation.
type Option func(*Instrumentation)

// WithTransport replaces the shared client's transport as the underlying RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(i *Instrumentation) { i.base = rt }
}

// WithMaxBuffered sets the body size above which responses are streamed through
// a counting reader instead of being read up front.
func WithMaxBuffered(n int64) Option {
	return func(i *Instrumentation) { i.maxBuffered = n }
}

// WithUserAgent sets the User-Agent for requests that carry none.
func WithUserAgent(ua string) Option {
	return func(i *Instrumentation) { i.userAgent = ua }
}

// NewInstrumentation layers hooks over the shared client's transport.
func NewInstrumentation(hooks Hooks, opts ...Option) *Instrumentation {
	i := &Instrumentation{
		hooks:       hooks,
		maxBuffered: DefaultMaxBuffered,
		userAgent:   constant.UserAgent,
	}

	for _, opt := range opts {
		opt(i)
	}

	if i.base == nil {
		i.base = Shared().Transport
	}

	return i
}

// Authorize sets the Authorization header for every later request. An empty
// value removes it.
func (i *Instrumentation) Authorize(value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.authorization = value
}

// Client returns a client that sends through the instrumentation with the
// shared client's timeout.
func (i *Instrumentation) Client() *http.Client {
	return &http.Client{
		Transport: i,
		Timeout:   Shared().Timeout,
	}
}

// Close stops reporting. Requests still in flight complete silently.
func (i *Instrumentation) Close() {
	i.closed.Store(true)
}

func (i *Instrumentation) streamed(n int64) {
	if !i.closed.Load() && i.hooks.OnStreamingResponse != nil {
		i.hooks.OnStreamingResponse(n)
	}
}

func (i *Instrumentation) failed(req *http.Request, err error) {
	log.Component("network").Warnf("%s %s: %v", req.Method, req.URL.Redacted(), err)
	if !i.closed.Load() && i.hooks.OnError != nil {
		i.hooks.OnError(fmt.Errorf("%w: %s: %w", ErrTransport, req.URL.Redacted(), err))
	}
}

// RoundTrip implements http.RoundTripper.
func (i *Instrumentation) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	i.mu.RLock()
	if i.authorization != "" {
		req.Header.Set("Authorization", i.authorization)
	}
	if i.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", i.userAgent)
	}
	i.mu.RUnlock()

	resp, err := i.base.RoundTrip(req)
	if err != nil {
		if !cancelled(req) {
			i.failed(req, err)
		}
		return clientClosed(req), nil
	}

	// Error pages are the engine's to judge and never count as streamed bytes.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	if resp.ContentLength > i.maxBuffered {
		resp.Body = &countingBody{body: resp.Body, req: req, owner: i}
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBuffered+1))
	_ = resp.Body.Close()
	if err == nil && int64(len(body)) > i.maxBuffered {
		err = fmt.Errorf("body exceeds %d bytes", i.maxBuffered)
	}
	if err != nil {
		if cancelled(req) {
			return clientClosed(req), nil
		}
		i.streamed(int64(len(body)))
		i.failed(req, err)
		return clientClosed(req), nil
	}

	length := resp.ContentLength
	if length < 0 {
		length = int64(len(body))
	}
	i.streamed(length)

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

func cancelled(req *http.Request) bool {
	return errors.Is(req.Context().Err(), context.Canceled)
}

// clientClosed synthesizes the neutral response returned in place of an error.
func clientClosed(req *http.Request) *http.Response {
	return &http.Response{
		Status:        "499 Client Closed Request",
		StatusCode:    StatusClientClosedRequest,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          http.NoBody,
		ContentLength: 0,
		Request:       req,
	}
}

// countingBody reports a large body's transfer once it is fully read or fails.
type countingBody struct {
	body  io.ReadCloser
	req   *http.Request
	owner *Instrumentation
	n     int64
	done  bool
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.n += int64(n)

	if err != nil && !b.done {
		b.done = true
		switch {
		case errors.Is(err, io.EOF):
			b.owner.streamed(b.n)
		case cancelled(b.req):
		default:
			b.owner.streamed(b.n)
			b.owner.failed(b.req, err)
		}
	}

	return n, err
}

func (b *countingBody) Close() error {
	return b.body.Close()
}

// OptionsFromConfig reads the network.* keys that shape an Instrumentation.
func OptionsFromConfig() []Option {
	var opts []Option

	if n := viper.GetInt64(key.NetworkMaxSegmentBytes); n > 0 {
		opts = append(opts, WithMaxBuffered(n))
	}

	if ua := viper.GetString(key.NetworkUserAgent); ua != "" {
		opts = append(opts, WithUserAgent(ua))
	}

	return opts
}
