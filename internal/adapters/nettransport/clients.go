// Package nettransport builds the outbound HTTP clients used for upstream
// calls. Routing is chosen per call from the session's NetworkRoute; the
// process environment is never consulted or changed.
package nettransport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	// ProxyURL is used for sessions that asked for proxy routing. A bare
	// host:port is treated as an http proxy.
	ProxyURL string
	Timeout  time.Duration
}

type Clients struct {
	direct  *http.Client
	proxied *http.Client
}

func New(cfg Config) (*Clients, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Clients{
		direct: &http.Client{Timeout: timeout, Transport: newTransport(nil)},
	}

	if raw := strings.TrimSpace(cfg.ProxyURL); raw != "" {
		proxyURL, err := ParseProxyURL(raw)
		if err != nil {
			return nil, err
		}
		c.proxied = &http.Client{Timeout: timeout, Transport: newTransport(proxyURL)}
	}
	return c, nil
}

// ParseProxyURL accepts a full URL or a bare host:port.
func ParseProxyURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse proxy url: %v", domain.ErrConfiguration, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: proxy url %q has no host", domain.ErrConfiguration, raw)
	}
	return u, nil
}

func newTransport(proxyURL *url.URL) *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	var t *http.Transport
	if ok {
		t = base.Clone()
	} else {
		t = &http.Transport{}
	}
	if t.IdleConnTimeout == 0 {
		t.IdleConnTimeout = 90 * time.Second
	}
	if t.TLSHandshakeTimeout == 0 {
		t.TLSHandshakeTimeout = 10 * time.Second
	}
	if proxyURL != nil {
		t.Proxy = http.ProxyURL(proxyURL)
	} else {
		t.Proxy = nil
	}
	return t
}

func (c *Clients) ProxyAvailable() bool {
	return c.proxied != nil
}

// For returns the client for route.
func (c *Clients) For(route domain.NetworkRoute) (*http.Client, error) {
	if !route.UseProxy {
		return c.direct, nil
	}
	if c.proxied == nil {
		return nil, domain.ErrProxyUnavailable
	}
	return c.proxied, nil
}

// NewStatic wraps an existing client for both routes. Used by tests and by
// callers that manage their own transport.
func NewStatic(client *http.Client) *Clients {
	return &Clients{direct: client, proxied: client}
}
