// internal/browser/harvester_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formgate/internal/auth"
)

func newTestHarvester(t *testing.T, opts auth.SessionOptions) *Harvester {
	t.Helper()
	h := NewHarvester(opts, zaptest.NewLogger(t))
	h.SetMainFrame("main")
	return h
}

func documentResponse(frame string, status int64) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		RequestID: "doc",
		FrameID:   cdp.FrameID(frame),
		Type:      network.ResourceTypeDocument,
		Response:  &network.Response{URL: "https://mail.example.com/owa", Status: status},
	}
}

func TestHarvester_TracksInflight(t *testing.T) {
	h := newTestHarvester(t, auth.DefaultSessionOptions())

	h.Handle(&network.EventRequestWillBeSent{RequestID: "1"})
	h.Handle(&network.EventRequestWillBeSent{RequestID: "2"})
	h.Handle(&network.EventRequestWillBeSent{RequestID: "2"}) // redirect leg
	assert.Equal(t, 2, h.Inflight())

	h.Handle(&network.EventLoadingFinished{RequestID: "1"})
	assert.Equal(t, 1, h.Inflight())
	h.Handle(&network.EventLoadingFailed{RequestID: "2"})
	assert.Zero(t, h.Inflight())

	h.Handle(&network.EventLoadingFinished{RequestID: "unknown"})
	assert.Zero(t, h.Inflight())
}

func TestHarvester_StatusFailure(t *testing.T) {
	t.Run("main frame error status fails the step", func(t *testing.T) {
		h := newTestHarvester(t, auth.DefaultSessionOptions())
		h.Handle(documentResponse("main", 500))
		err := h.StepFailure()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")

		h.BeginStep()
		assert.NoError(t, h.StepFailure())
	})

	t.Run("first failure wins", func(t *testing.T) {
		h := newTestHarvester(t, auth.DefaultSessionOptions())
		h.Handle(documentResponse("main", 404))
		h.Handle(documentResponse("main", 503))
		assert.Contains(t, h.StepFailure().Error(), "404")
	})

	t.Run("ignored when disabled", func(t *testing.T) {
		opts := auth.DefaultSessionOptions()
		opts.FailOnStatus = false
		h := newTestHarvester(t, opts)
		h.Handle(documentResponse("main", 500))
		assert.NoError(t, h.StepFailure())
	})

	t.Run("subframes and subresources do not count", func(t *testing.T) {
		h := newTestHarvester(t, auth.DefaultSessionOptions())
		h.Handle(documentResponse("iframe", 500))
		xhr := documentResponse("main", 500)
		xhr.Type = network.ResourceTypeXHR
		h.Handle(xhr)
		h.Handle(documentResponse("main", 302))
		assert.NoError(t, h.StepFailure())
	})
}

func TestHarvester_ScriptFailure(t *testing.T) {
	exception := &runtime.EventExceptionThrown{ExceptionDetails: &runtime.ExceptionDetails{
		Text:      "Uncaught",
		Exception: &runtime.RemoteObject{Description: "TypeError: x is undefined"},
	}}

	h := newTestHarvester(t, auth.DefaultSessionOptions())
	h.Handle(exception)
	require.Error(t, h.StepFailure())
	assert.Contains(t, h.StepFailure().Error(), "TypeError")

	opts := auth.DefaultSessionOptions()
	opts.FailOnScriptError = false
	quiet := newTestHarvester(t, opts)
	quiet.Handle(exception)
	assert.NoError(t, quiet.StepFailure())
}

func TestHarvester_WaitNetworkIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("idle network returns after the quiet period", func(t *testing.T) {
		h := newTestHarvester(t, auth.DefaultSessionOptions())
		start := time.Now()
		require.NoError(t, h.WaitNetworkIdle(context.Background(), 20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("waits for in-flight requests", func(t *testing.T) {
		h := newTestHarvester(t, auth.DefaultSessionOptions())
		h.Handle(&network.EventRequestWillBeSent{RequestID: "xhr"})

		done := make(chan error, 1)
		go func() { done <- h.WaitNetworkIdle(context.Background(), 20*time.Millisecond) }()

		select {
		case <-done:
			t.Fatal("returned while a request was in flight")
		case <-time.After(80 * time.Millisecond):
		}

		h.Handle(&network.EventLoadingFinished{RequestID: "xhr"})
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("did not return after the request finished")
		}
	})

	t.Run("context bounds the wait", func(t *testing.T) {
		h := newTestHarvester(t, auth.DefaultSessionOptions())
		h.Handle(&network.EventRequestWillBeSent{RequestID: "hung"})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, h.WaitNetworkIdle(ctx, 20*time.Millisecond), context.DeadlineExceeded)
	})
}
