package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/playbridge/playbridge/log"
)

// Proxy is a loopback HTTP server that forwards to upstream origins through an
// Instrumentation. Engines that fetch media themselves are pointed at it so their
// traffic is observed and authorized like the in-process engine's.
//
// An upstream URL https://cdn.example.com/a/b.m3u8 is served as
// http://127.0.0.1:PORT/https/cdn.example.com/a/b.m3u8, so relative references in
// playlists resolve back through the proxy.
type Proxy struct {
	listener net.Listener
	server   *http.Server
}

// NewProxy starts serving on an ephemeral loopback port.
func NewProxy(rt http.RoundTripper) (*Proxy, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("proxy listen: %w", err)
	}

	reverse := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			upstream, err := upstreamOf(r.In.URL)
			if err != nil {
				// Unroutable; the transport answers with 499.
				upstream = &url.URL{Scheme: "http", Host: "invalid.invalid"}
			}
			r.Out.URL = upstream
			r.Out.Host = upstream.Host
		},
		Transport: rt,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if !errors.Is(err, context.Canceled) {
				log.Component("proxy").Warnf("%s: %v", r.URL.Path, err)
			}
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	p := &Proxy{
		listener: listener,
		server: &http.Server{
			Handler:           reverse,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Component("proxy").Errorf("serve: %v", err)
		}
	}()

	return p, nil
}

// URL maps an upstream URL onto the proxy. Non-HTTP URLs are returned unchanged.
func (p *Proxy) URL(upstream *url.URL) *url.URL {
	if upstream.Scheme != "http" && upstream.Scheme != "https" {
		return upstream
	}

	return &url.URL{
		Scheme:   "http",
		Host:     p.listener.Addr().String(),
		Path:     "/" + upstream.Scheme + "/" + upstream.Host + upstream.EscapedPath(),
		RawQuery: upstream.RawQuery,
	}
}

// Close stops the server and drops open connections.
func (p *Proxy) Close() error {
	return p.server.Close()
}

func upstreamOf(in *url.URL) (*url.URL, error) {
	parts := strings.SplitN(strings.TrimPrefix(in.Path, "/"), "/", 3)
	if len(parts) < 2 || (parts[0] != "http" && parts[0] != "https") || parts[1] == "" {
		return nil, fmt.Errorf("unroutable proxy path %q", in.Path)
	}

	out := &url.URL{
		Scheme:   parts[0],
		Host:     parts[1],
		Path:     "/",
		RawQuery: in.RawQuery,
	}
	if len(parts) == 3 {
		out.Path += parts[2]
	}
	return out, nil
}
