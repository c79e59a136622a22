package cmd

import (
	"bytes"
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/99designs/keyring"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/auth"
	"github.com/xkilldash9x/formgate/internal/config"
	"github.com/xkilldash9x/formgate/internal/credential"
	"github.com/xkilldash9x/formgate/internal/gateway"
	"github.com/xkilldash9x/formgate/internal/legacy"
	"github.com/xkilldash9x/formgate/internal/observability"
	"github.com/xkilldash9x/formgate/internal/service"
)

// stubAuth stands in for the browser handshake. A successful Authenticate plants the
// marker cookie in the client's store, the way the bridge would.
type stubAuth struct {
	mu            sync.Mutex
	client        *legacy.Client
	loginURL      *url.URL
	username      string
	err           error
	calls         int
	authenticated bool
}

func newStubAuth(t *testing.T, loginURL, username string) *stubAuth {
	t.Helper()
	client, err := legacy.NewClient(loginURL, config.NewDefaultConfig().Legacy(), zap.NewNop())
	require.NoError(t, err)
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	return &stubAuth{client: client, loginURL: u, username: username}
}

func (s *stubAuth) Authenticate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.authenticated = true
	return nil
}

func (s *stubAuth) HTTPClient() (*legacy.Client, error) {
	s.client.CookieStore().Add(legacy.Cookie{Domain: s.loginURL.Hostname(), Name: auth.DefaultMarkerCookie, Value: "tok"})
	return s.client, nil
}

func (s *stubAuth) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *stubAuth) Cookies() auth.CookieSet {
	if !s.Authenticated() {
		return nil
	}
	root := "/"
	return auth.CookieSet{{Domain: s.loginURL.Hostname(), Name: auth.DefaultMarkerCookie, Value: "tok", Path: &root}}
}

func (s *stubAuth) Username() string   { return s.username }
func (s *stubAuth) LoginURI() *url.URL { return s.loginURL }

func (s *stubAuth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeFactory builds components around a stubAuth instead of Chrome.
type fakeFactory struct {
	auth *stubAuth
	cfg  config.Interface
	err  error
}

func (f *fakeFactory) Create(_ context.Context, cfg config.Interface, logger *zap.Logger) (*service.Components, error) {
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &service.Components{
		Gateway: gateway.New(f.auth, nil, gateway.Options{Attempts: 1}, logger),
	}, nil
}

// useFactory swaps the component factory for the duration of the test.
func useFactory(t *testing.T, f service.ComponentFactory) {
	t.Helper()
	prev := newFactory
	newFactory = func() service.ComponentFactory { return f }
	t.Cleanup(func() { newFactory = prev })
}

// useKeyring backs credential commands with an in-memory keyring.
func useKeyring(t *testing.T) *credential.Store {
	t.Helper()
	store := credential.NewStore(keyring.NewArrayKeyring(nil))
	prev := openCredentialStore
	openCredentialStore = func(config.CredentialConfig) (*credential.Store, error) { return store, nil }
	t.Cleanup(func() { openCredentialStore = prev })
	return store
}

func usePassword(t *testing.T, password string) {
	t.Helper()
	prev := promptPassword
	promptPassword = func(*cobra.Command, string) (string, error) { return password, nil }
	t.Cleanup(func() { promptPassword = prev })
}

// run executes a fresh command tree and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)
	t.Setenv("HOME", t.TempDir())

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
