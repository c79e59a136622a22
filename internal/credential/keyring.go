// Package credential stores login passwords in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/99designs/keyring"

	"github.com/xkilldash9x/formgate/internal/config"
)

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = errors.New("no stored credential")

// Store reads and writes passwords keyed by username@host.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store over the first available OS backend, falling back to a file
// under cfg.FileDir. The file is encrypted with cfg.FilePassphrase when one is set.
func Open(cfg config.CredentialConfig) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: cfg.ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         filePassword(cfg),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// filePassword returns the file backend's key. The fallback is derived from the service
// name, so it obfuscates the file but does not protect it from anyone who can read it.
func filePassword(cfg config.CredentialConfig) keyring.PromptFunc {
	if cfg.FilePassphrase != "" {
		return keyring.FixedStringPrompt(cfg.FilePassphrase)
	}
	return keyring.FixedStringPrompt(cfg.ServiceName + "-file-key")
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Key builds the keyring key for a user on the host of loginURL.
func Key(username, loginURL string) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}
	u, err := url.Parse(loginURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("login url %q has no host", loginURL)
	}
	return username + "@" + strings.ToLower(u.Hostname()), nil
}

// Get returns the stored password for username at loginURL.
func (s *Store) Get(username, loginURL string) (string, error) {
	key, err := Key(username, loginURL)
	if err != nil {
		return "", err
	}
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w for %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores password for username at loginURL, replacing any previous value.
func (s *Store) Set(username, loginURL, password string) error {
	key, err := Key(username, loginURL)
	if err != nil {
		return err
	}
	err = s.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(password),
		Label:       "formgate login for " + key,
		Description: "form login password",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes the stored password. Deleting a missing entry reports ErrNotFound.
func (s *Store) Delete(username, loginURL string) error {
	key, err := Key(username, loginURL)
	if err != nil {
		return err
	}
	// Some backends delete missing keys silently; look first so every backend reports the same.
	if _, err := s.ring.Get(key); errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("%w for %s", ErrNotFound, key)
	}
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
