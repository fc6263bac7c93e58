package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

const dialTimeout = 30 * time.Second

// fingerprintTransport performs HTTPS requests with a Chrome ClientHello. It tries
// HTTP/2 first and falls back to HTTP/1.1 for servers that refuse it. Plain HTTP
// goes through the fallback transport unchanged.
type fingerprintTransport struct {
	fallback http.RoundTripper

	h2Once sync.Once
	h2     *http2.Transport
	h1Once sync.Once
	h1     *http.Transport
}

func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.fallback.RoundTrip(req)
	}

	resp, err := t.http2().RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}

	return t.http1().RoundTrip(req)
}

func (t *fingerprintTransport) http2() *http2.Transport {
	t.h2Once.Do(func() {
		t.h2 = &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialFingerprint(ctx, network, addr, nil)
			},
		}
	})
	return t.h2
}

func (t *fingerprintTransport) http1() *http.Transport {
	t.h1Once.Do(func() {
		t.h1 = newTransport()
		t.h1.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialFingerprint(ctx, network, addr, []string{"http/1.1"})
		}
	})
	return t.h1
}

// dialFingerprint opens a TLS connection mimicking Chrome 120. nextProtos
// overrides the advertised ALPN list when set.
func dialFingerprint(ctx context.Context, network, addr string, nextProtos []string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		NextProtos: nextProtos,
	}, utls.HelloChrome_120)

	if err := tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
