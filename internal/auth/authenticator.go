// File: internal/auth/authenticator.go
package auth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/legacy"
)

// FormAuthenticator logs in through a forms-based sign-in page and hands out a legacy
// HTTP client carrying the resulting session.
type FormAuthenticator struct {
	engine      Engine
	facade      ClientFacade
	creds       Credentials
	loginURL    *url.URL
	locator     FormLocator
	marker      string
	settleWait  time.Duration
	sessionOpts SessionOptions
	logger      *zap.Logger

	mu            sync.Mutex
	cookies       CookieSet
	authenticated bool
}

// Option configures a FormAuthenticator.
type Option func(*FormAuthenticator)

// WithLocator overrides the form control identifiers.
func WithLocator(l FormLocator) Option {
	return func(a *FormAuthenticator) { a.locator = l }
}

// WithMarkerCookie overrides the cookie name that signals a successful login.
func WithMarkerCookie(name string) Option {
	return func(a *FormAuthenticator) { a.marker = name }
}

// WithSettleWait overrides the pause after load and after submit.
func WithSettleWait(d time.Duration) Option {
	return func(a *FormAuthenticator) { a.settleWait = d }
}

// WithSessionOptions overrides the navigation session settings.
func WithSessionOptions(o SessionOptions) Option {
	return func(a *FormAuthenticator) { a.sessionOpts = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *FormAuthenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewFormAuthenticator validates loginURL and builds an authenticator with defaults
// for everything the options leave unset.
func NewFormAuthenticator(engine Engine, facade ClientFacade, creds Credentials, loginURL string, opts ...Option) (*FormAuthenticator, error) {
	if engine == nil {
		return nil, fmt.Errorf("navigation engine is required")
	}
	if facade == nil {
		return nil, fmt.Errorf("legacy client facade is required")
	}
	u, err := url.Parse(loginURL)
	if err != nil {
		return nil, fmt.Errorf("invalid login url %q: %w", loginURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("login url %q must be absolute", loginURL)
	}

	a := &FormAuthenticator{
		engine:      engine,
		facade:      facade,
		creds:       creds,
		loginURL:    u,
		locator:     DefaultFormLocator(),
		marker:      DefaultMarkerCookie,
		settleWait:  DefaultSettleWait,
		sessionOpts: DefaultSessionOptions(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.marker == "" {
		return nil, fmt.Errorf("marker cookie name must not be empty")
	}
	a.logger = a.logger.Named("auth")
	return a, nil
}

// Authenticate runs one handshake and checks for the marker cookie. Any previously
// captured cookies are discarded first, so a failed attempt leaves nothing to bridge.
func (a *FormAuthenticator) Authenticate(ctx context.Context) error {
	a.mu.Lock()
	a.cookies = nil
	a.authenticated = false
	a.mu.Unlock()

	loginURL := a.loginURL.String()
	controller := NewController(a.engine, a.sessionOpts, a.settleWait, a.logger)
	set, err := controller.Handshake(ctx, a.creds, a.locator, loginURL)
	if err != nil {
		return err
	}
	if !Verify(set, a.marker) {
		a.logger.Info("Login rejected; marker cookie missing.",
			zap.String("url", loginURL),
			zap.String("marker", a.marker),
			zap.Strings("cookies", set.Names()))
		return &AuthenticationFailedError{URL: loginURL, Marker: a.marker}
	}

	a.mu.Lock()
	a.cookies = set
	a.authenticated = true
	a.mu.Unlock()

	a.logger.Info("Login succeeded.", zap.String("url", loginURL), zap.Int("cookies", len(set)))
	return nil
}

// HTTPClient bridges the captured cookies into the legacy client for the login host.
func (a *FormAuthenticator) HTTPClient() (*legacy.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.authenticated {
		return nil, ErrNotAuthenticated
	}
	return Bridge(a.cookies, a.facade, a.creds, a.loginURL.String())
}

// Login authenticates and returns the bridged client.
func (a *FormAuthenticator) Login(ctx context.Context) (*legacy.Client, error) {
	if err := a.Authenticate(ctx); err != nil {
		return nil, err
	}
	return a.HTTPClient()
}

// Cookies returns a copy of the cookies from the last successful Authenticate.
func (a *FormAuthenticator) Cookies() CookieSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cookies == nil {
		return nil
	}
	out := make(CookieSet, len(a.cookies))
	copy(out, a.cookies)
	return out
}

// Authenticated reports whether the last Authenticate succeeded.
func (a *FormAuthenticator) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

// Username returns the account name typed into the login form.
func (a *FormAuthenticator) Username() string { return a.creds.Username }

// LoginURI returns a copy of the login page URL.
func (a *FormAuthenticator) LoginURI() *url.URL {
	u := *a.loginURL
	return &u
}

// MarkerCookie returns the cookie name checked by Authenticate.
func (a *FormAuthenticator) MarkerCookie() string { return a.marker }
