// File: internal/auth/bridge.go
package auth

import (
	"fmt"

	"github.com/xkilldash9x/formgate/internal/legacy"
)

// TranslateCookie converts an engine cookie to the legacy client's cookie model.
// The legacy model keeps "no path attribute" apart from an empty path, so a nil Path
// becomes "" with PathAttributeSpecified unset.
func TranslateCookie(c Cookie) legacy.Cookie {
	out := legacy.Cookie{
		Domain:                 c.Domain,
		Name:                   c.Name,
		Value:                  c.Value,
		Secure:                 c.Secure,
		PathAttributeSpecified: c.Path != nil,
	}
	if c.Path != nil {
		out.Path = *c.Path
	}
	if c.Expires != nil {
		exp := *c.Expires
		out.Expires = &exp
	}
	return out
}

// Bridge publishes set into the legacy client bound to loginURL's host, attaching creds
// and enabling connection pooling first. The store replaces cookies by domain, name and
// path, so bridging the same set twice leaves the store unchanged.
// Bridge does not lock; concurrent bridges into one client must be serialized by the caller.
func Bridge(set CookieSet, facade ClientFacade, creds Credentials, loginURL string) (*legacy.Client, error) {
	client, err := facade.GetOrCreate(loginURL)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain legacy client for %s: %w", loginURL, err)
	}
	facade.SetCredentials(client, creds.Username, creds.Password)
	facade.EnablePooling(client)

	store := client.CookieStore()
	for _, c := range set {
		store.Add(TranslateCookie(c))
	}
	return client, nil
}
