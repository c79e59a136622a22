// File: internal/legacy/facade.go
package legacy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/config"
)

// Facade owns the legacy clients, one per scheme and host.
type Facade struct {
	cfg    config.LegacyConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFacade creates an empty facade. Every client it creates shares cfg.
func NewFacade(cfg config.LegacyConfig, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// GetOrCreate returns the client bound to rawURL's scheme and host, creating it on first use.
func (f *Facade) GetOrCreate(rawURL string) (*Client, error) {
	origin, err := originOf(rawURL)
	if err != nil {
		return nil, err
	}
	key := origin.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c, nil
	}
	c, err := NewClient(key, f.cfg, f.logger)
	if err != nil {
		return nil, err
	}
	f.clients[key] = c
	f.logger.Debug("Created legacy client.", zap.String("origin", key))
	return c, nil
}

// Lookup returns the existing client for rawURL's origin without creating one.
func (f *Facade) Lookup(rawURL string) (*Client, bool) {
	origin, err := originOf(rawURL)
	if err != nil {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[origin.String()]
	return c, ok
}

// SetCredentials attaches credentials to client.
func (f *Facade) SetCredentials(client *Client, username, password string) {
	client.SetCredentials(username, password)
}

// EnablePooling switches client to a pooled transport.
func (f *Facade) EnablePooling(client *Client) {
	client.EnablePooling()
}

// CloseIdleConnections drops idle connections on every client.
func (f *Facade) CloseIdleConnections() {
	f.mu.Lock()
	clients := make([]*Client, 0, len(f.clients))
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.Unlock()

	for _, c := range clients {
		c.CloseIdleConnections()
	}
}
