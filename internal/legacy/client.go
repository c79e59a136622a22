// File: internal/legacy/client.go
package legacy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Azure/go-ntlmssp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/config"
)

// Client is a plain HTTP client bound to one scheme and host. It owns a cookie store
// and optional credentials that are attached only to requests for that origin.
//
// Client is safe for concurrent use. Callers must close response bodies.
type Client struct {
	base   *url.URL
	cfg    config.LegacyConfig
	logger *zap.Logger
	store  *CookieStore
	chain  *authTransport
	http   *http.Client
}

// NewClient creates an unpooled client for rawURL's scheme and host.
func NewClient(rawURL string, cfg config.LegacyConfig, logger *zap.Logger) (*Client, error) {
	base, err := originOf(rawURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("legacy").With(zap.String("host", base.Host))

	timeout := DefaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = cfg.RequestTimeout
	}

	chain := &authTransport{
		origin:    base,
		scheme:    strings.ToLower(cfg.AuthScheme),
		userAgent: cfg.UserAgent,
	}
	chain.install(newTransport(cfg, false, logger))

	store := NewCookieStore()
	return &Client{
		base:   base,
		cfg:    cfg,
		logger: logger,
		store:  store,
		chain:  chain,
		http: &http.Client{
			Transport: chain,
			Jar:       store,
			Timeout:   timeout,
		},
	}, nil
}

// originOf reduces rawURL to its scheme and host.
func originOf(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("url %q must be absolute http(s)", rawURL)
	}
	return &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}, nil
}

// Host returns the host (and port, if any) the client is bound to.
func (c *Client) Host() string { return c.base.Host }

// BaseURL returns a copy of the client's scheme and host.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// CookieStore returns the store backing the client's cookie jar.
func (c *Client) CookieStore() *CookieStore { return c.store }

// HTTP returns the underlying *http.Client.
func (c *Client) HTTP() *http.Client { return c.http }

// SetCredentials attaches username and password to subsequent requests, either as a
// Basic header or through NTLM negotiation depending on the configured scheme.
func (c *Client) SetCredentials(username, password string) {
	c.chain.setCredentials(username, password)
	c.logger.Debug("Credentials set.", zap.String("username", username), zap.String("scheme", c.chain.scheme))
}

// EnablePooling switches the client to a keep-alive transport for concurrent reuse.
// Calling it again is a no-op.
func (c *Client) EnablePooling() {
	old, changed := c.chain.upgrade(func() *http.Transport {
		return newTransport(c.cfg, true, c.logger)
	})
	if !changed {
		return
	}
	if old != nil {
		old.CloseIdleConnections()
	}
	c.logger.Debug("Connection pooling enabled.")
}

// Pooled reports whether EnablePooling has been called.
func (c *Client) Pooled() bool { return c.chain.pooled() }

// Do sends req. A request URL without a host is resolved against the client's base.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Host == "" {
		req = req.Clone(req.Context())
		req.URL = c.base.ResolveReference(req.URL)
	}
	return c.http.Do(req)
}

// Get issues a GET for ref, relative to the client's base.
func (c *Client) Get(ctx context.Context, ref string) (*http.Response, error) {
	u, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", ref, err)
	}
	return c.base.ResolveReference(r), nil
}

// CloseIdleConnections drops idle pooled connections.
func (c *Client) CloseIdleConnections() {
	c.chain.CloseIdleConnections()
}

// authTransport is the head of the client's transport chain:
// credentials, then optional NTLM negotiation, then decompression, then the base transport.
// The base can be swapped while requests are in flight.
type authTransport struct {
	origin    *url.URL
	scheme    string
	userAgent string

	mu       sync.RWMutex
	username string
	password string
	base     *http.Transport
	next     http.RoundTripper
	isPooled bool
}

func (t *authTransport) wrap(base *http.Transport) http.RoundTripper {
	var next http.RoundTripper = newDecompressingTransport(base)
	if t.scheme == config.AuthSchemeNTLM {
		next = ntlmssp.Negotiator{RoundTripper: next}
	}
	return next
}

// install sets the unpooled base transport.
func (t *authTransport) install(base *http.Transport) {
	next := t.wrap(base)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = base
	t.next = next
	t.isPooled = false
}

// upgrade swaps in a pooled base built by build, once. It returns the replaced
// transport and whether a swap happened.
func (t *authTransport) upgrade(build func() *http.Transport) (*http.Transport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isPooled {
		return nil, false
	}
	old := t.base
	t.base = build()
	t.next = t.wrap(t.base)
	t.isPooled = true
	return old, true
}

func (t *authTransport) setCredentials(username, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.username = username
	t.password = password
}

func (t *authTransport) pooled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isPooled
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.RLock()
	username, password, next := t.username, t.password, t.next
	t.mu.RUnlock()

	req = req.Clone(req.Context())
	if username != "" && sameOrigin(t.origin, req.URL) && req.Header.Get("Authorization") == "" {
		// The NTLM negotiator reads the Basic header and replaces it with the handshake.
		// Without the header it passes the request through untouched.
		req.SetBasicAuth(username, password)
	}
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return next.RoundTrip(req)
}

func (t *authTransport) CloseIdleConnections() {
	t.mu.RLock()
	base := t.base
	t.mu.RUnlock()
	if base != nil {
		base.CloseIdleConnections()
	}
}

// sameOrigin reports whether u has origin's scheme and host, ignoring an explicit default port.
func sameOrigin(origin, u *url.URL) bool {
	if origin == nil || u == nil {
		return false
	}
	if !strings.EqualFold(origin.Scheme, u.Scheme) {
		return false
	}
	return strings.EqualFold(canonicalHost(origin), canonicalHost(u))
}

func canonicalHost(u *url.URL) string {
	host, port := u.Hostname(), u.Port()
	switch {
	case port == "",
		port == "80" && strings.EqualFold(u.Scheme, "http"),
		port == "443" && strings.EqualFold(u.Scheme, "https"):
		return host
	}
	return net.JoinHostPort(host, port)
}
