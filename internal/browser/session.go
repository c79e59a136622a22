// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/auth"
	"github.com/xkilldash9x/formgate/internal/config"
)

const sessionCloseTimeout = 10 * time.Second

// Session is one browser with one tab. It implements auth.Session.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	opts   auth.SessionOptions
	logger *zap.Logger

	harvester *Harvester
	onClose   func()
	closeOnce sync.Once
	closeErr  error
}

var _ auth.Session = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, id string, cfg config.BrowserConfig, opts auth.SessionOptions, logger *zap.Logger) *Session {
	log := logger.Named("session").With(zap.String("session_id", id))
	return &Session{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		opts:      opts,
		logger:    log,
		harvester: NewHarvester(opts, log),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// initialize launches the browser and applies the session options.
func (s *Session) initialize(ctx context.Context) error {
	// The first Run allocates the browser and binds its lifetime to s.ctx, so it must not
	// carry the caller's deadline. The caller's cancellation still aborts the launch.
	launched := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-launched:
		}
	}()
	err := chromedp.Run(s.ctx)
	close(launched)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("could not launch browser: %w", err)
	}

	chromedp.ListenTarget(s.ctx, s.handleEvent)

	actions := chromedp.Tasks{
		network.Enable(),
		runtime.Enable(),
		page.Enable(),
		chromedp.ActionFunc(func(c context.Context) error {
			tree, err := page.GetFrameTree().Do(c)
			if err != nil {
				return fmt.Errorf("could not read frame tree: %w", err)
			}
			if tree != nil && tree.Frame != nil {
				s.harvester.SetMainFrame(tree.Frame.ID)
			}
			return nil
		}),
	}
	if !s.opts.JavaScript {
		actions = append(actions, emulation.SetScriptExecutionDisabled(true))
	}
	if !s.opts.CSS {
		actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   "*",
			ResourceType: network.ResourceTypeStylesheet,
			RequestStage: fetch.RequestStageRequest,
		}}))
	}

	return s.run(ctx, actions)
}

func (s *Session) handleEvent(ev interface{}) {
	if e, ok := ev.(*fetch.EventRequestPaused); ok {
		// Only stylesheet requests are intercepted. Answering has to leave the event loop.
		go func() {
			if err := chromedp.Run(s.ctx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient)); err != nil && s.ctx.Err() == nil {
				s.logger.Debug("Failed to block stylesheet request.", zap.String("url", e.Request.URL), zap.Error(err))
			}
		}()
		return
	}
	s.harvester.Handle(ev)
}

// run executes actions bounded by both the caller's context and the navigation timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	actionCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	timeoutCtx, timeoutCancel := context.WithTimeout(actionCtx, s.cfg.NavigationTimeout)
	defer timeoutCancel()
	return chromedp.Run(timeoutCtx, actions...)
}

// step runs a navigating action, then waits for the network to settle when resync is on,
// and finally reports any failing status or script error seen along the way.
func (s *Session) step(ctx context.Context, action chromedp.Action) error {
	s.harvester.BeginStep()
	if err := s.run(ctx, action); err != nil {
		return err
	}

	if s.opts.ResyncAjax {
		idleCtx, cancel := CombineContext(s.ctx, ctx)
		idleCtx, timeoutCancel := context.WithTimeout(idleCtx, s.cfg.NetworkIdleTimeout)
		err := s.harvester.WaitNetworkIdle(idleCtx, s.cfg.NetworkQuietPeriod)
		timeoutCancel()
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("Network did not go idle before timeout; continuing.",
				zap.Int("inflight_requests", s.harvester.Inflight()),
				zap.Duration("timeout", s.cfg.NetworkIdleTimeout))
		}
	}

	return s.harvester.StepFailure()
}

// Load navigates the tab to url.
func (s *Session) Load(ctx context.Context, url string) (auth.Document, error) {
	s.logger.Debug("Loading page.", zap.String("url", url))
	if err := s.step(ctx, chromedp.Navigate(url)); err != nil {
		return nil, err
	}
	return &document{session: s}, nil
}

// CookiesFor returns the cookies the browser would send to url.
func (s *Session) CookiesFor(ctx context.Context, url string) (auth.CookieSet, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{url}).Do(c)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return convertCookies(cookies), nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		case <-time.After(sessionCloseTimeout):
			s.closeErr = fmt.Errorf("timed out closing browser after %s", sessionCloseTimeout)
		}
		s.cancel()

		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Debug("Session closed.")
	})
	return s.closeErr
}
