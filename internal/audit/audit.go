// Package audit records login handshake attempts. Cookie values are never stored.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/auth"
	"github.com/xkilldash9x/formgate/internal/config"
)

// Outcome classifies how an attempt ended.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeRejected        Outcome = "rejected"
	OutcomeEngineError     Outcome = "engine_error"
	OutcomeNavigationError Outcome = "navigation_error"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeCanceled        Outcome = "canceled"
	OutcomeError           Outcome = "error"
)

// Attempt is one handshake run against a login URL.
type Attempt struct {
	ID          string        `json:"id"`
	LoginURL    string        `json:"login_url"`
	Username    string        `json:"username"`
	Attempt     int           `json:"attempt"`
	Outcome     Outcome       `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	CookieCount int           `json:"cookie_count"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// OutcomeOf maps a handshake result onto an Outcome.
func OutcomeOf(err error) Outcome {
	var (
		failed  *auth.AuthenticationFailedError
		timeout *auth.TimeoutError
		engine  *auth.EngineError
		nav     *auth.NavigationError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &failed):
		return OutcomeRejected
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.As(err, &engine):
		return OutcomeEngineError
	case errors.As(err, &nav):
		return OutcomeNavigationError
	default:
		return OutcomeError
	}
}

// Recorder persists attempts. Implementations are safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, a Attempt) error
	Recent(ctx context.Context, limit int) ([]Attempt, error)
	Close() error
}

// Nop discards every attempt.
type Nop struct{}

func (Nop) Record(context.Context, Attempt) error           { return nil }
func (Nop) Recent(context.Context, int) ([]Attempt, error) { return nil, nil }
func (Nop) Close() error                                    { return nil }

// Open returns the recorder selected by cfg.Driver.
func Open(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (Recorder, error) {
	switch cfg.Driver {
	case config.AuditDriverNone:
		return Nop{}, nil
	case config.AuditDriverPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	case config.AuditDriverSQLite:
		return OpenSQLite(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
}
