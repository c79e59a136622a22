// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/audit"
	"github.com/xkilldash9x/formgate/internal/gateway"
	"github.com/xkilldash9x/formgate/internal/observability"
)

// Shutdowner is implemented by the browser engine.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// IdleCloser is implemented by the legacy client facade.
type IdleCloser interface {
	CloseIdleConnections()
}

// Components holds everything a login or fetch needs and releases it in order.
type Components struct {
	Gateway  *gateway.Gateway
	Recorder audit.Recorder
	Engine   Shutdowner
	Clients  IdleCloser
}

// Shutdown closes the browser engine, then idle legacy connections, then the audit log.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Engine != nil {
		// Separate context so shutdown completes even if the command context was canceled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Engine.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser engine shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser engine shut down.")
		}
	}

	if c.Clients != nil {
		c.Clients.CloseIdleConnections()
	}

	if c.Recorder != nil {
		if err := c.Recorder.Close(); err != nil {
			logger.Warn("Error closing audit recorder.", zap.Error(err))
		}
	}

	logger.Debug("All components shut down.")
}
