// File: internal/legacy/facade_test.go
package legacy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formgate/internal/config"
)

func TestFacade_GetOrCreate(t *testing.T) {
	f := NewFacade(testLegacyConfig(), zaptest.NewLogger(t))

	a, err := f.GetOrCreate("https://mail.example.com/owa/auth/logon.aspx")
	require.NoError(t, err)
	b, err := f.GetOrCreate("https://MAIL.example.com/ews/")
	require.NoError(t, err)
	assert.Same(t, a, b, "same scheme and host share a client")

	plain, err := f.GetOrCreate("http://mail.example.com/")
	require.NoError(t, err)
	assert.NotSame(t, a, plain, "scheme is part of the key")

	other, err := f.GetOrCreate("https://autodiscover.example.com/")
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	got, ok := f.Lookup("https://mail.example.com/anything")
	assert.True(t, ok)
	assert.Same(t, a, got)
	_, ok = f.Lookup("https://unknown.example.com/")
	assert.False(t, ok)

	_, err = f.GetOrCreate("not a url")
	assert.Error(t, err)
}

func TestFacade_Concurrent(t *testing.T) {
	f := NewFacade(testLegacyConfig(), nil)

	clients := make([]*Client, 16)
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := f.GetOrCreate("https://mail.example.com/")
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range clients[1:] {
		assert.Same(t, clients[0], c)
	}
}

func TestFacade_CredentialsAndPooling(t *testing.T) {
	cfg := testLegacyConfig()
	cfg.AuthScheme = config.AuthSchemeBasic
	f := NewFacade(cfg, nil)

	c, err := f.GetOrCreate("https://mail.example.com/")
	require.NoError(t, err)

	f.SetCredentials(c, "alice", "secret")
	assert.Equal(t, "alice", c.chain.username)
	assert.Equal(t, "secret", c.chain.password)

	f.EnablePooling(c)
	assert.True(t, c.Pooled())

	f.CloseIdleConnections()
}
