// internal/browser/harvester.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/auth"
)

// Harvester follows a session's CDP event stream. It tracks in-flight requests for
// idle detection and records the first step failure (a failing document status or an
// uncaught script exception) when the session options ask for it.
type Harvester struct {
	logger      *zap.Logger
	failStatus  bool
	failScript  bool
	lock        sync.RWMutex
	inflight    map[network.RequestID]struct{}
	mainFrame   cdp.FrameID
	stepFailure error
}

// NewHarvester creates a harvester for one session.
func NewHarvester(opts auth.SessionOptions, logger *zap.Logger) *Harvester {
	return &Harvester{
		logger:     logger.Named("harvester"),
		failStatus: opts.FailOnStatus,
		failScript: opts.FailOnScriptError,
		inflight:   make(map[network.RequestID]struct{}),
	}
}

// SetMainFrame scopes status checks to the top-level frame.
func (h *Harvester) SetMainFrame(id cdp.FrameID) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.mainFrame = id
}

// Handle dispatches one CDP event. It is the ListenTarget callback and must not block.
func (h *Harvester) Handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		h.lock.Lock()
		// Redirect legs reuse the request id, which stays in flight.
		h.inflight[e.RequestID] = struct{}{}
		h.lock.Unlock()
	case *network.EventLoadingFinished:
		h.finish(e.RequestID)
	case *network.EventLoadingFailed:
		h.finish(e.RequestID)
	case *network.EventResponseReceived:
		h.handleResponseReceived(e)
	case *runtime.EventExceptionThrown:
		h.handleExceptionThrown(e)
	}
}

func (h *Harvester) finish(id network.RequestID) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.inflight, id)
}

func (h *Harvester) handleResponseReceived(e *network.EventResponseReceived) {
	if !h.failStatus || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	if e.Response.Status < 400 {
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	if h.mainFrame != "" && e.FrameID != h.mainFrame {
		return
	}
	if h.stepFailure == nil {
		h.stepFailure = fmt.Errorf("document %s returned status %d", e.Response.URL, int(e.Response.Status))
	}
}

func (h *Harvester) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	if !h.failScript || e.ExceptionDetails == nil {
		return
	}
	msg := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		msg = e.ExceptionDetails.Exception.Description
	}
	h.logger.Debug("Uncaught script exception.", zap.String("message", msg), zap.String("url", e.ExceptionDetails.URL))

	h.lock.Lock()
	defer h.lock.Unlock()
	if h.stepFailure == nil {
		h.stepFailure = fmt.Errorf("script error: %s", msg)
	}
}

// BeginStep clears any failure left over from the previous step.
func (h *Harvester) BeginStep() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.stepFailure = nil
}

// StepFailure returns the first failure seen since BeginStep, if any.
func (h *Harvester) StepFailure() error {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.stepFailure
}

// Inflight returns the number of requests still in progress.
func (h *Harvester) Inflight() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.inflight)
}

// WaitNetworkIdle polls until no request has been in flight for quietPeriod.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		quietPeriod = 100 * time.Millisecond
	}
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := h.Inflight(); n > 0 {
				lastActivity = time.Now()
				h.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", n))
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}
