// Package gateway is the caller-side policy around a form authenticator: it coalesces
// concurrent logins, serializes bridging, retries transient failures and audits attempts.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formgate/internal/audit"
	"github.com/xkilldash9x/formgate/internal/auth"
	"github.com/xkilldash9x/formgate/internal/legacy"
)

const recordTimeout = 5 * time.Second

// Authenticator is the part of auth.FormAuthenticator the gateway drives.
type Authenticator interface {
	Authenticate(ctx context.Context) error
	HTTPClient() (*legacy.Client, error)
	Authenticated() bool
	Cookies() auth.CookieSet
	Username() string
	LoginURI() *url.URL
}

var _ Authenticator = (*auth.FormAuthenticator)(nil)

// Options tunes retry behavior.
type Options struct {
	// Attempts is the total number of handshakes tried per Login. Values below 1 mean 1.
	Attempts int
	// RetryInterval spaces consecutive handshakes. Zero retries immediately.
	RetryInterval time.Duration
}

// Gateway hands out the authenticated legacy client.
type Gateway struct {
	auth     Authenticator
	recorder audit.Recorder
	attempts int
	limiter  *rate.Limiter
	logger   *zap.Logger

	group singleflight.Group
	// mu serializes handshakes with bridging into the shared client.
	mu  sync.Mutex
	now func() time.Time
}

// New wraps a. A nil recorder disables auditing.
func New(a Authenticator, recorder audit.Recorder, opts Options, logger *zap.Logger) *Gateway {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	limit := rate.Inf
	if opts.RetryInterval > 0 {
		limit = rate.Every(opts.RetryInterval)
	}
	return &Gateway{
		auth:     a,
		recorder: recorder,
		attempts: opts.Attempts,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.Named("gateway"),
		now:      time.Now,
	}
}

// Client returns the bridged client, logging in first if no handshake has succeeded yet.
func (g *Gateway) Client(ctx context.Context) (*legacy.Client, error) {
	if g.auth.Authenticated() {
		g.mu.Lock()
		client, err := g.auth.HTTPClient()
		g.mu.Unlock()
		if err == nil {
			return client, nil
		}
		g.logger.Debug("Stored session unusable; logging in again.", zap.Error(err))
	}
	return g.Login(ctx)
}

// Login forces a new handshake. Callers arriving while one is in flight share its
// result, including its context.
func (g *Gateway) Login(ctx context.Context) (*legacy.Client, error) {
	v, err, shared := g.group.Do("login", func() (interface{}, error) {
		return g.login(ctx)
	})
	if shared {
		g.logger.Debug("Joined an in-flight login.")
	}
	if err != nil {
		return nil, err
	}
	return v.(*legacy.Client), nil
}

func (g *Gateway) login(ctx context.Context) (*legacy.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("waiting to retry login: %w (last error: %v)", err, lastErr)
			}
			return nil, fmt.Errorf("waiting to retry login: %w", err)
		}

		client, err := g.attempt(ctx, attempt)
		if err == nil {
			return client, nil
		}
		lastErr = err

		if !auth.IsRetryable(err) || attempt == g.attempts {
			break
		}
		g.logger.Warn("Login attempt failed; retrying.",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.attempts),
			zap.Error(err))
	}
	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, n int) (*legacy.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	started := g.now()
	err := g.auth.Authenticate(ctx)
	var client *legacy.Client
	if err == nil {
		client, err = g.auth.HTTPClient()
	}

	rec := audit.Attempt{
		ID:        uuid.NewString(),
		LoginURL:  g.auth.LoginURI().String(),
		Username:  g.auth.Username(),
		Attempt:   n,
		Outcome:   audit.OutcomeOf(err),
		StartedAt: started,
		Duration:  g.now().Sub(started),
	}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.CookieCount = len(g.auth.Cookies())
	}

	// A canceled login is still recorded.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if recErr := g.recorder.Record(recordCtx, rec); recErr != nil {
		g.logger.Warn("Failed to record login attempt.", zap.String("attempt_id", rec.ID), zap.Error(recErr))
	}

	return client, err
}

// Cookies returns the cookie set captured by the last successful handshake.
func (g *Gateway) Cookies() auth.CookieSet {
	return g.auth.Cookies()
}
