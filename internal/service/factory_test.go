package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/audit"
	"github.com/xkilldash9x/formgate/internal/config"
	"github.com/xkilldash9x/formgate/internal/credential"
)

type mapLookup map[string]string

func (m mapLookup) Get(username, loginURL string) (string, error) {
	key, err := credential.Key(username, loginURL)
	if err != nil {
		return "", err
	}
	if p, ok := m[key]; ok {
		return p, nil
	}
	return "", credential.ErrNotFound
}

type closeCounter struct {
	audit.Nop
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func testFactory(lookup PasswordLookup, rec audit.Recorder, auditErr error) *concreteFactory {
	return &concreteFactory{
		openCredentials: func(config.CredentialConfig) (PasswordLookup, error) { return lookup, nil },
		openAudit: func(context.Context, config.AuditConfig, *zap.Logger) (audit.Recorder, error) {
			return rec, auditErr
		},
	}
}

func newLoginConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.SetAuthLoginURL("https://mail.example.com/owa/")
	cfg.SetAuthUsername("alice")
	return cfg
}

func TestResolvePassword(t *testing.T) {
	lookup := mapLookup{"alice@mail.example.com": "from-keyring"}
	open := func() (PasswordLookup, error) { return lookup, nil }

	t.Run("configured password wins", func(t *testing.T) {
		got, err := ResolvePassword(config.AuthConfig{Username: "alice", LoginURL: "https://mail.example.com/", Password: "from-env"}, func() (PasswordLookup, error) {
			t.Fatal("keyring must not be opened")
			return nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "from-env", got)
	})

	t.Run("falls back to keyring", func(t *testing.T) {
		got, err := ResolvePassword(config.AuthConfig{Username: "alice", LoginURL: "https://mail.example.com/"}, open)
		require.NoError(t, err)
		assert.Equal(t, "from-keyring", got)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		_, err := ResolvePassword(config.AuthConfig{Username: "bob", LoginURL: "https://mail.example.com/"}, open)
		assert.ErrorIs(t, err, credential.ErrNotFound)
		assert.Contains(t, err.Error(), "FORMGATE_AUTH_PASSWORD")
	})

	t.Run("keyring unavailable", func(t *testing.T) {
		_, err := ResolvePassword(config.AuthConfig{Username: "bob"}, func() (PasswordLookup, error) {
			return nil, errors.New("no backend")
		})
		assert.ErrorContains(t, err, "keyring unavailable")
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("requires login url and username", func(t *testing.T) {
		f := testFactory(mapLookup{}, audit.Nop{}, nil)
		_, err := f.Create(ctx, config.NewDefaultConfig(), logger)
		assert.ErrorContains(t, err, "login URL")

		cfg := config.NewDefaultConfig()
		cfg.SetAuthLoginURL("https://mail.example.com/owa/")
		_, err = f.Create(ctx, cfg, logger)
		assert.ErrorContains(t, err, "username")
	})

	t.Run("wires the stack", func(t *testing.T) {
		rec := &closeCounter{}
		f := testFactory(mapLookup{"alice@mail.example.com": "s3cret"}, rec, nil)

		components, err := f.Create(ctx, newLoginConfig(), logger)
		require.NoError(t, err)
		assert.NotNil(t, components.Gateway)
		assert.NotNil(t, components.Engine)
		assert.NotNil(t, components.Clients)
		assert.Same(t, rec, components.Recorder)

		components.Shutdown()
		assert.Equal(t, 1, rec.closed)
	})

	t.Run("audit failure aborts", func(t *testing.T) {
		f := testFactory(mapLookup{"alice@mail.example.com": "s3cret"}, nil, errors.New("dsn refused"))
		_, err := f.Create(ctx, newLoginConfig(), logger)
		assert.ErrorContains(t, err, "dsn refused")
	})

	t.Run("bad marker aborts and closes the recorder", func(t *testing.T) {
		rec := &closeCounter{}
		f := testFactory(mapLookup{"alice@mail.example.com": "s3cret"}, rec, nil)
		cfg := newLoginConfig()
		cfg.AuthCfg.MarkerCookie = ""

		_, err := f.Create(ctx, cfg, logger)
		assert.ErrorContains(t, err, "marker")
		assert.Equal(t, 1, rec.closed)
	})
}
