// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/auth"
	"github.com/xkilldash9x/formgate/internal/config"
)

const (
	defaultNavigationTimeout  = 30 * time.Second
	defaultNetworkIdleTimeout = 5 * time.Second
	defaultNetworkQuietPeriod = 500 * time.Millisecond
	shutdownGracePeriod       = 15 * time.Second
)

// ErrEngineClosed is returned by NewSession after Shutdown.
var ErrEngineClosed = errors.New("browser engine is shut down")

// ErrRedirectsRequired is returned when a session asks not to follow redirects, which Chrome cannot honor.
var ErrRedirectsRequired = errors.New("chrome always follows redirects; FollowRedirects=false is not supported")

// Engine launches a headless Chrome per session and implements auth.Engine.
type Engine struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
	closed   bool
}

var _ auth.Engine = (*Engine)(nil)

// NewEngine prepares an allocator. No browser starts until the first session is opened.
func NewEngine(cfg config.BrowserConfig, logger *zap.Logger) *Engine {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.NetworkIdleTimeout <= 0 {
		cfg.NetworkIdleTimeout = defaultNetworkIdleTimeout
	}
	if cfg.NetworkQuietPeriod <= 0 {
		cfg.NetworkQuietPeriod = defaultNetworkQuietPeriod
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(cfg)...)
	e := &Engine{
		cfg:         cfg,
		logger:      logger.Named("browser_engine"),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}
	e.logger.Debug("Browser engine created (launch deferred).", zap.Bool("headless", cfg.Headless))
	return e
}

// NewSession starts a new browser with its own profile and prepares it according to opts.
func (e *Engine) NewSession(ctx context.Context, opts auth.SessionOptions) (auth.Session, error) {
	if !opts.FollowRedirects {
		return nil, ErrRedirectsRequired
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	var ctxOpts []chromedp.ContextOption
	if e.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(e.logger.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(e.allocCtx, ctxOpts...)

	s := newSession(browserCtx, browserCancel, uuid.NewString(), e.cfg, opts, e.logger)
	s.onClose = func() {
		e.mu.Lock()
		delete(e.sessions, s.id)
		e.mu.Unlock()
		e.wg.Done()
	}

	if err := s.initialize(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize browser session: %w", err)
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.logger.Debug("New session created.", zap.String("session_id", s.id))
	return s, nil
}

// OpenSessions reports how many sessions are currently live.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Shutdown closes every live session and then the allocator.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	live := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		live = append(live, s)
	}
	e.mu.Unlock()

	e.logger.Info("Shutting down browser engine.", zap.Int("active_sessions", len(live)))
	var errs []error
	for _, s := range live {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.id, err))
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
		e.logger.Warn("Timed out waiting for sessions to close.")
		errs = append(errs, waitCtx.Err())
	}

	e.allocCancel()
	return errors.Join(errs...)
}
