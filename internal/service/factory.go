// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/audit"
	"github.com/xkilldash9x/formgate/internal/auth"
	"github.com/xkilldash9x/formgate/internal/browser"
	"github.com/xkilldash9x/formgate/internal/config"
	"github.com/xkilldash9x/formgate/internal/credential"
	"github.com/xkilldash9x/formgate/internal/gateway"
	"github.com/xkilldash9x/formgate/internal/legacy"
)

// ComponentFactory builds the components for one CLI invocation.
// Commands take the interface so tests can substitute the browser-backed stack.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// PasswordLookup finds a stored password for an account.
type PasswordLookup interface {
	Get(username, loginURL string) (string, error)
}

type concreteFactory struct {
	openCredentials func(config.CredentialConfig) (PasswordLookup, error)
	openAudit       func(context.Context, config.AuditConfig, *zap.Logger) (audit.Recorder, error)
}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		openCredentials: func(cfg config.CredentialConfig) (PasswordLookup, error) {
			return credential.Open(cfg)
		},
		openAudit: audit.Open,
	}
}

// Create wires engine, facade, authenticator, recorder and gateway from cfg.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	authCfg := cfg.Auth()
	if authCfg.LoginURL == "" {
		return nil, errors.New("login URL is not configured (hint: --url or auth.login_url)")
	}
	if authCfg.Username == "" {
		return nil, errors.New("username is not configured (hint: --username or auth.username)")
	}

	password, err := ResolvePassword(authCfg, func() (PasswordLookup, error) {
		return f.openCredentials(cfg.Credential())
	})
	if err != nil {
		return nil, err
	}

	components := &Components{}
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	recorder, err := f.openAudit(ctx, cfg.Audit(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open audit log: %w", err)
		return nil, initializationErr
	}
	components.Recorder = recorder

	facade := legacy.NewFacade(cfg.Legacy(), logger)
	components.Clients = facade

	engine := browser.NewEngine(cfg.Browser(), logger)
	components.Engine = engine

	authenticator, err := auth.NewFormAuthenticator(engine, facade,
		auth.Credentials{Username: authCfg.Username, Password: password},
		authCfg.LoginURL,
		auth.WithLocator(auth.FormLocator{
			UsernameField: authCfg.UsernameField,
			PasswordField: authCfg.PasswordField,
			SubmitButton:  authCfg.SubmitButton,
		}),
		auth.WithMarkerCookie(authCfg.MarkerCookie),
		auth.WithSettleWait(authCfg.SettleWait),
		auth.WithLogger(logger),
	)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create authenticator: %w", err)
		return nil, initializationErr
	}

	components.Gateway = gateway.New(authenticator, recorder, gateway.Options{
		Attempts:      authCfg.Attempts,
		RetryInterval: authCfg.RetryInterval,
	}, logger)

	logger.Debug("Components initialized.",
		zap.String("login_url", authCfg.LoginURL),
		zap.String("audit_driver", cfg.Audit().Driver))
	return components, nil
}

// ResolvePassword prefers a configured password (usually FORMGATE_AUTH_PASSWORD) and
// otherwise looks the account up in the keyring.
func ResolvePassword(authCfg config.AuthConfig, open func() (PasswordLookup, error)) (string, error) {
	if authCfg.Password != "" {
		return authCfg.Password, nil
	}
	store, err := open()
	if err != nil {
		return "", fmt.Errorf("no password configured and keyring unavailable: %w", err)
	}
	password, err := store.Get(authCfg.Username, authCfg.LoginURL)
	if err != nil {
		return "", fmt.Errorf("no password configured (hint: FORMGATE_AUTH_PASSWORD or 'formgate credential set'): %w", err)
	}
	return password, nil
}
