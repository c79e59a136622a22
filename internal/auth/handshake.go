// File: internal/auth/handshake.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Settle stages reported in TimeoutError.
const (
	StageAfterLoad   = "after load"
	StageAfterSubmit = "after submit"
)

// Controller drives a single login handshake against a navigation engine.
// It holds no per-attempt state and can be reused; each Handshake opens its own session.
type Controller struct {
	engine      Engine
	sessionOpts SessionOptions
	settleWait  time.Duration
	logger      *zap.Logger
}

// NewController creates a handshake controller. A zero settleWait skips the pauses.
func NewController(engine Engine, sessionOpts SessionOptions, settleWait time.Duration, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		engine:      engine,
		sessionOpts: sessionOpts,
		settleWait:  settleWait,
		logger:      logger.Named("handshake"),
	}
}

// Handshake loads loginURL, fills in and submits the form, and returns the cookies the
// session holds for loginURL once the post-submit settle wait has elapsed.
// The session is closed on every return path.
func (c *Controller) Handshake(ctx context.Context, creds Credentials, locator FormLocator, loginURL string) (_ CookieSet, err error) {
	logger := c.logger.With(zap.String("url", loginURL), zap.String("username", creds.Username))

	session, err := c.engine.NewSession(ctx, c.sessionOpts)
	if err != nil {
		return nil, &EngineError{Op: "open session", Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			// Reported, never returned: the handshake outcome is already decided.
			logger.Warn("Failed to close navigation session.", zap.Error(cerr), zap.NamedError("handshake_error", err))
		}
	}()

	logger.Debug("Loading login page.")
	doc, err := session.Load(ctx, loginURL)
	if err != nil {
		return nil, &NavigationError{URL: loginURL, Err: err}
	}
	if err := c.settle(ctx, loginURL, StageAfterLoad); err != nil {
		return nil, err
	}

	submit, err := doc.ElementByID(ctx, locator.SubmitButton)
	if err != nil {
		return nil, &EngineError{Op: "locate submit button", Locator: locator.SubmitButton, Err: err}
	}
	username, err := firstByIDOrName(ctx, doc, locator.UsernameField)
	if err != nil {
		return nil, &EngineError{Op: "locate username field", Locator: locator.UsernameField, Err: err}
	}
	password, err := firstByIDOrName(ctx, doc, locator.PasswordField)
	if err != nil {
		return nil, &EngineError{Op: "locate password field", Locator: locator.PasswordField, Err: err}
	}

	if err := username.Type(ctx, creds.Username); err != nil {
		return nil, &EngineError{Op: "type username", Locator: locator.UsernameField, Err: err}
	}
	if err := password.Type(ctx, creds.Password); err != nil {
		return nil, &EngineError{Op: "type password", Locator: locator.PasswordField, Err: err}
	}

	logger.Debug("Submitting login form.")
	if _, err := submit.Click(ctx); err != nil {
		return nil, &NavigationError{URL: loginURL, Err: fmt.Errorf("submit: %w", err)}
	}
	if err := c.settle(ctx, loginURL, StageAfterSubmit); err != nil {
		return nil, err
	}

	cookies, err := session.CookiesFor(ctx, loginURL)
	if err != nil {
		return nil, &EngineError{Op: "read cookie jar", Err: err}
	}
	logger.Debug("Captured session cookies.", zap.Strings("cookies", cookies.Names()))
	return cookies, nil
}

// settle blocks for the configured settle wait, or until ctx is done.
func (c *Controller) settle(ctx context.Context, url, stage string) error {
	if c.settleWait <= 0 {
		if err := ctx.Err(); err != nil {
			return &TimeoutError{URL: url, Stage: stage, Err: err}
		}
		return nil
	}

	timer := time.NewTimer(c.settleWait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return &TimeoutError{URL: url, Stage: stage, Err: ctx.Err()}
	}
}

func firstByIDOrName(ctx context.Context, doc Document, name string) (Element, error) {
	elems, err := doc.ElementsByIDOrName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, ErrElementNotFound
	}
	return elems[0], nil
}

// IsRetryable reports whether a failed handshake is worth repeating.
// Credential rejection and caller cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var failed *AuthenticationFailedError
	if errors.As(err, &failed) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
