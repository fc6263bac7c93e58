// Package network owns the process-wide HTTP client and the per-player
// instrumentation layered over it.
package network

import (
	"net/http"
	"sync"
	"time"

	"github.com/playbridge/playbridge/config"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/spf13/viper"
)

// Shared returns the process-wide client. It is built on first use, exactly once,
// and never torn down; players wrap its transport rather than creating their own
// so connections are pooled across player instances.
var Shared = sync.OnceValue(func() *http.Client {
	timeout := config.Duration(key.NetworkTimeout)
	if timeout == 0 {
		timeout = time.Minute
	}

	var transport http.RoundTripper = newTransport()
	if viper.GetBool(key.NetworkTLSFingerprint) {
		log.Component("network").Info("using browser tls fingerprint")
		transport = &fingerprintTransport{fallback: transport}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
})

// newTransport initializes a tuned http.Transport with pool parameters suited to
// segment fetching: many small requests against few hosts.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 100
	t.MaxConnsPerHost = 200
	t.IdleConnTimeout = 30 * time.Second
	t.ResponseHeaderTimeout = 30 * time.Second
	t.ExpectContinueTimeout = time.Second
	return t
}
