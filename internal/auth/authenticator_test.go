// File: internal/auth/authenticator_test.go
package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formgate/internal/legacy"
)

// countingFacade records how many times a client was requested for bridging.
type countingFacade struct {
	*legacy.Facade

	mu      sync.Mutex
	bridges int
}

func (f *countingFacade) GetOrCreate(rawURL string) (*legacy.Client, error) {
	f.mu.Lock()
	f.bridges++
	f.mu.Unlock()
	return f.Facade.GetOrCreate(rawURL)
}

func newTestAuthenticator(t *testing.T, engine Engine, opts ...Option) (*FormAuthenticator, *countingFacade) {
	t.Helper()
	facade := &countingFacade{Facade: newTestFacade()}
	opts = append([]Option{WithSettleWait(0), WithLogger(zaptest.NewLogger(t))}, opts...)
	a, err := NewFormAuthenticator(engine, facade, alice, testLoginURL, opts...)
	require.NoError(t, err)
	return a, facade
}

func TestNewFormAuthenticator(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a, err := NewFormAuthenticator(newFakeEngine(), newTestFacade(), alice, testLoginURL)
		require.NoError(t, err)

		assert.Equal(t, "alice", a.Username())
		assert.Equal(t, testLoginURL, a.LoginURI().String())
		assert.Equal(t, DefaultMarkerCookie, a.MarkerCookie())
		assert.Equal(t, DefaultFormLocator(), a.locator)
		assert.Equal(t, DefaultSettleWait, a.settleWait)
		assert.Equal(t, DefaultSessionOptions(), a.sessionOpts)
		assert.False(t, a.Authenticated())
	})

	t.Run("options override defaults", func(t *testing.T) {
		loc := FormLocator{UsernameField: "u", PasswordField: "p", SubmitButton: "go"}
		opts := SessionOptions{JavaScript: true}
		a, err := NewFormAuthenticator(newFakeEngine(), newTestFacade(), alice, testLoginURL,
			WithLocator(loc), WithMarkerCookie("MSISAuth"), WithSettleWait(time.Second), WithSessionOptions(opts), WithLogger(nil))
		require.NoError(t, err)

		assert.Equal(t, loc, a.locator)
		assert.Equal(t, "MSISAuth", a.MarkerCookie())
		assert.Equal(t, time.Second, a.settleWait)
		assert.Equal(t, opts, a.sessionOpts)
		assert.NotNil(t, a.logger)
	})

	t.Run("login uri is a copy", func(t *testing.T) {
		a, err := NewFormAuthenticator(newFakeEngine(), newTestFacade(), alice, testLoginURL)
		require.NoError(t, err)
		a.LoginURI().Host = "evil.test"
		assert.Equal(t, "mail.example.com", a.LoginURI().Host)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := NewFormAuthenticator(nil, newTestFacade(), alice, testLoginURL)
		assert.Error(t, err)
		_, err = NewFormAuthenticator(newFakeEngine(), nil, alice, testLoginURL)
		assert.Error(t, err)
		_, err = NewFormAuthenticator(newFakeEngine(), newTestFacade(), alice, "/login")
		assert.Error(t, err)
		_, err = NewFormAuthenticator(newFakeEngine(), newTestFacade(), alice, testLoginURL, WithMarkerCookie(""))
		assert.Error(t, err)
	})
}

// Scenario: the post-submit jar carries FedAuth.
func TestLogin_Succeeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := newFakeEngine()
	engine.jarAfterSubmit = fedAuthJar()
	a, facade := newTestAuthenticator(t, engine)

	client, err := a.Login(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)

	all := client.CookieStore().All()
	require.Len(t, all, 1)
	assert.Equal(t, "FedAuth", all[0].Name)
	assert.Equal(t, "abc123", all[0].Value)
	assert.Equal(t, "mail.example.com", all[0].Domain)
	assert.True(t, all[0].Secure)
	assert.True(t, client.Pooled())

	assert.True(t, a.Authenticated())
	assert.Equal(t, fedAuthJar(), a.Cookies())
	assert.Equal(t, 1, facade.bridges)
	assert.Zero(t, engine.openSessions())
}

// Scenario: the handshake completes but FedAuth is never issued.
func TestLogin_MarkerMissing(t *testing.T) {
	engine := newFakeEngine()
	engine.jarAfterSubmit = CookieSet{{Domain: "mail.example.com", Name: "MSISSamlRequest", Value: "x", Path: strPtr("/")}}
	a, facade := newTestAuthenticator(t, engine)

	client, err := a.Login(context.Background())
	assert.Nil(t, client)

	var failed *AuthenticationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, testLoginURL, failed.URL)
	assert.Equal(t, "FedAuth", failed.Marker)

	assert.Zero(t, facade.bridges, "legacy client must not be touched")
	_, exists := facade.Lookup(testLoginURL)
	assert.False(t, exists)
	assert.False(t, a.Authenticated())
	assert.Nil(t, a.Cookies())
	assert.Zero(t, engine.openSessions())
}

// Scenario: the submit button is absent from the login page.
func TestLogin_SubmitButtonMissing(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := newFakeEngine()
	delete(engine.ids, "submitButton")
	engine.jarAfterSubmit = fedAuthJar()
	a, facade := newTestAuthenticator(t, engine)

	_, err := a.Login(context.Background())

	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Equal(t, "submitButton", engErr.Locator)
	assert.Zero(t, facade.bridges)
	assert.Zero(t, engine.openSessions())
}

func TestAuthenticate_ConfiguredMarker(t *testing.T) {
	engine := newFakeEngine()
	engine.jarAfterSubmit = CookieSet{{Domain: "mail.example.com", Name: "MSISAuth", Value: "m"}}

	a, _ := newTestAuthenticator(t, engine, WithMarkerCookie("MSISAuth"))
	require.NoError(t, a.Authenticate(context.Background()))

	b, _ := newTestAuthenticator(t, engine)
	var failed *AuthenticationFailedError
	assert.ErrorAs(t, b.Authenticate(context.Background()), &failed)
}

func TestAuthenticate_FailureClearsPreviousSet(t *testing.T) {
	engine := newFakeEngine()
	engine.jarAfterSubmit = fedAuthJar()
	a, _ := newTestAuthenticator(t, engine)

	require.NoError(t, a.Authenticate(context.Background()))
	require.Len(t, a.Cookies(), 1)

	engine.jarAfterSubmit = nil
	require.Error(t, a.Authenticate(context.Background()))
	assert.Nil(t, a.Cookies())

	_, err := a.HTTPClient()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthenticate_OverwritesPreviousSet(t *testing.T) {
	engine := newFakeEngine()
	engine.jarAfterSubmit = CookieSet{{Domain: "mail.example.com", Name: "FedAuth", Value: "first"}}
	a, _ := newTestAuthenticator(t, engine)
	require.NoError(t, a.Authenticate(context.Background()))

	engine.jarAfterSubmit = CookieSet{{Domain: "mail.example.com", Name: "FedAuth", Value: "second"}}
	require.NoError(t, a.Authenticate(context.Background()))

	got := a.Cookies()
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Value)
	assert.Equal(t, 2, engine.opened, "every attempt opens its own session")
}

func TestHTTPClient(t *testing.T) {
	t.Run("before authenticate", func(t *testing.T) {
		a, _ := newTestAuthenticator(t, newFakeEngine())
		_, err := a.HTTPClient()
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("repeated bridging reuses the client and store", func(t *testing.T) {
		engine := newFakeEngine()
		engine.jarAfterSubmit = fedAuthJar()
		a, facade := newTestAuthenticator(t, engine)
		require.NoError(t, a.Authenticate(context.Background()))

		first, err := a.HTTPClient()
		require.NoError(t, err)
		second, err := a.HTTPClient()
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, second.CookieStore().Len())
		assert.Equal(t, 2, facade.bridges)
	})

	t.Run("cookies returns a copy", func(t *testing.T) {
		engine := newFakeEngine()
		engine.jarAfterSubmit = fedAuthJar()
		a, _ := newTestAuthenticator(t, engine)
		require.NoError(t, a.Authenticate(context.Background()))

		got := a.Cookies()
		got[0].Value = "tampered"
		assert.Equal(t, "abc123", a.Cookies()[0].Value)
	})
}
