// Package drm is the integration seam for protected streams.
//
// Engines that meet an encrypted playlist ask a KeyProvider for the content key.
// The license exchange itself is not implemented: LicenseClient validates the
// request and reports ErrNotImplemented, which engines surface as a playback error.
package drm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/spf13/viper"
)

var (
	// ErrNotImplemented is returned for every key request that would need a license exchange.
	ErrNotImplemented = errors.New("drm: license exchange not implemented")
	// ErrUnsupportedMethod is returned for encryption methods no provider can handle.
	ErrUnsupportedMethod = errors.New("drm: unsupported encryption method")
)

// Method is the encryption method a playlist declares.
type Method string

const (
	MethodNone       Method = "NONE"
	MethodAES128     Method = "AES-128"
	MethodSampleAES  Method = "SAMPLE-AES"
	MethodSampleCTR  Method = "SAMPLE-AES-CTR"
	MethodISO23001_7 Method = "ISO-23001-7"
)

// Protected reports whether m needs a key at all.
func (m Method) Protected() bool {
	return m != "" && m != MethodNone
}

// KeyRequest describes one key a playlist refers to.
type KeyRequest struct {
	Method    Method
	URI       *url.URL
	KeyFormat string
	IV        string
}

// KeyProvider resolves content keys.
type KeyProvider interface {
	AcquireKey(ctx context.Context, req KeyRequest) ([]byte, error)
}

// LicenseClient talks to a license server.
type LicenseClient struct {
	URL    string
	Client *http.Client
}

// NewLicenseClient uses the configured license server.
func NewLicenseClient(client *http.Client) *LicenseClient {
	return &LicenseClient{
		URL:    viper.GetString(key.DRMLicenseURL),
		Client: client,
	}
}

func (c *LicenseClient) AcquireKey(_ context.Context, req KeyRequest) ([]byte, error) {
	switch req.Method {
	case MethodAES128, MethodSampleAES, MethodSampleCTR, MethodISO23001_7:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}

	if c.URL == "" || !strings.HasPrefix(c.URL, "https://") {
		return nil, fmt.Errorf("drm: license server %q must be an https url", c.URL)
	}

	log.Component("drm").Warnf("key request for %s (%s) needs a license exchange", req.Method, req.KeyFormat)
	return nil, ErrNotImplemented
}
