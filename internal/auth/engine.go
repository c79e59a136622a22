// File: internal/auth/engine.go
package auth

import (
	"context"

	"github.com/xkilldash9x/formgate/internal/legacy"
)

// Engine opens navigation sessions. Sessions are not shared between handshakes.
type Engine interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is a single browsing context.
type Session interface {
	// Load navigates to url and returns the resulting document.
	Load(ctx context.Context, url string) (Document, error)
	// CookiesFor returns every cookie the session would send to url.
	CookiesFor(ctx context.Context, url string) (CookieSet, error)
	Close() error
}

// Document is a loaded page.
type Document interface {
	// ElementByID returns ErrElementNotFound when no element carries the id.
	ElementByID(ctx context.Context, id string) (Element, error)
	// ElementsByIDOrName returns an empty slice when nothing matches.
	ElementsByIDOrName(ctx context.Context, name string) ([]Element, error)
}

// Element is a control inside a Document.
type Element interface {
	// Type enters text as individual key events.
	Type(ctx context.Context, text string) error
	// Click activates the element and returns the document it leads to.
	Click(ctx context.Context) (Document, error)
}

// ClientFacade hands out the long-lived legacy HTTP clients that receive bridged cookies.
type ClientFacade interface {
	GetOrCreate(rawURL string) (*legacy.Client, error)
	SetCredentials(client *legacy.Client, username, password string)
	EnablePooling(client *legacy.Client)
}
