// SPDX-License-Identifier: MIT

// Package httpx builds the outbound HTTP clients. Every upstream client in
// the bot goes through NewClient so timeouts and connection limits stay
// bounded; http.DefaultClient has no timeout at all and is banned by a guard
// test.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultClientTimeout = 30 * time.Second
	maxClientTimeout     = 2 * time.Minute

	defaultDialTimeout = 5 * time.Second
	maxDialTimeout     = 10 * time.Second

	defaultResponseHeaderTimeout = 15 * time.Second
	maxResponseHeaderTimeout     = 30 * time.Second

	defaultIdleConnTimeout = 90 * time.Second

	defaultMaxIdleConns        = 16
	defaultMaxIdleConnsPerHost = 4
)

// Options tunes a client built by NewClient. Zero values pick defaults and
// all timeouts are clamped to hard caps.
type Options struct {
	// Timeout bounds the whole request including the body read.
	Timeout time.Duration
	// DialTimeout bounds TCP connection establishment.
	DialTimeout time.Duration
	// ResponseHeaderTimeout bounds the wait for response headers.
	ResponseHeaderTimeout time.Duration
	// MaxIdleConnsPerHost overrides the idle connection pool per host.
	MaxIdleConnsPerHost int
	// Transport wraps the base transport when set, for instrumentation.
	Transport func(http.RoundTripper) http.RoundTripper
}

func clamp(v, def, max time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// NewClient returns an HTTP client with bounded timeouts and a fresh
// transport. Clients are safe for concurrent use and should be built once per
// upstream, not per request.
func NewClient(opts Options) *http.Client {
	dialer := &net.Dialer{
		Timeout:   clamp(opts.DialTimeout, defaultDialTimeout, maxDialTimeout),
		KeepAlive: 30 * time.Second,
	}

	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = defaultMaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: clamp(opts.ResponseHeaderTimeout, defaultResponseHeaderTimeout, maxResponseHeaderTimeout),
		ExpectContinueTimeout: 1 * time.Second,
	}

	var rt http.RoundTripper = transport
	if opts.Transport != nil {
		rt = opts.Transport(transport)
	}

	return &http.Client{
		Timeout:   clamp(opts.Timeout, defaultClientTimeout, maxClientTimeout),
		Transport: rt,
	}
}
