// Package httpclient builds the pooled HTTP client used for all API
// traffic. One client is shared across every endpoint fetch so
// connections to the reporting API are reused between pages.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// Config holds HTTP client options.
type Config struct {
	// Timeout is the total request timeout (default: 60s).
	Timeout time.Duration

	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string

	// MaxIdleConns is the maximum number of idle connections (default: 100).
	MaxIdleConns int

	// MaxConnsPerHost caps connections per host (default: 10).
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections stay pooled (default: 90s).
	IdleConnTimeout time.Duration

	// DialTimeout bounds connection establishment (default: 10s).
	DialTimeout time.Duration
}

// DefaultConfig returns defaults tuned for paginated report fetches:
// long per-request timeout, modest per-host pool.
func DefaultConfig() Config {
	return Config{
		Timeout:         60 * time.Second,
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialTimeout:     10 * time.Second,
	}
}

// New creates an HTTP client with the given configuration. Zero
// values fall back to DefaultConfig values.
func New(cfg Config) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 10
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,

		DialContext: dialer.DialContext,
	}

	if cfg.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// AuthTransport injects the API token and content negotiation headers
// into every request, so call sites never handle credentials.
type AuthTransport struct {
	Token string
	Base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("X-Authorization", t.Token)
	clone.Header.Set("Accept", "application/json")
	if clone.Header.Get("Content-Type") == "" {
		clone.Header.Set("Content-Type", "application/json")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// NewAuthenticated returns a pooled client whose every request
// carries the given API token.
func NewAuthenticated(cfg Config, token string) *http.Client {
	c := New(cfg)
	c.Transport = &AuthTransport{Token: token, Base: c.Transport}
	return c
}
