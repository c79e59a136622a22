// File: internal/auth/fake_engine_test.go
package auth

import (
	"context"
	"errors"
	"sync"
)

// fakeEngine is an in-memory navigation engine. The login page holds the controls
// listed in ids and names; clicking the submit control "issues" jarAfterSubmit.
type fakeEngine struct {
	mu sync.Mutex

	ids            map[string]bool
	names          map[string]bool
	jarAfterSubmit CookieSet

	newSessionErr error
	loadErr       error
	clickErr      error
	cookiesErr    error
	closeErr      error
	typeErr       error
	// onLoad runs inside Load, e.g. to cancel the caller's context.
	onLoad  func()
	onClick func()

	opened   int
	closed   int
	loaded   []string
	typed    map[string]string
	clicked  []string
	lastOpts SessionOptions
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		ids:   map[string]bool{"UserName": true, "Password": true, "submitButton": true},
		names: map[string]bool{},
		typed: map[string]string{},
	}
}

func (e *fakeEngine) NewSession(_ context.Context, opts SessionOptions) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.newSessionErr != nil {
		return nil, e.newSessionErr
	}
	e.opened++
	e.lastOpts = opts
	return &fakeSession{engine: e}, nil
}

func (e *fakeEngine) openSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened - e.closed
}

type fakeSession struct {
	engine    *fakeEngine
	submitted bool
	closed    bool
}

func (s *fakeSession) Load(_ context.Context, url string) (Document, error) {
	e := s.engine
	e.mu.Lock()
	e.loaded = append(e.loaded, url)
	err, hook := e.loadErr, e.onLoad
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &fakeDocument{session: s}, nil
}

func (s *fakeSession) CookiesFor(_ context.Context, _ string) (CookieSet, error) {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cookiesErr != nil {
		return nil, e.cookiesErr
	}
	if !s.submitted {
		return CookieSet{}, nil
	}
	out := make(CookieSet, len(e.jarAfterSubmit))
	copy(out, e.jarAfterSubmit)
	return out, nil
}

func (s *fakeSession) Close() error {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	e.closed++
	return e.closeErr
}

type fakeDocument struct {
	session *fakeSession
}

func (d *fakeDocument) ElementByID(_ context.Context, id string) (Element, error) {
	e := d.session.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ids[id] {
		return nil, ErrElementNotFound
	}
	return &fakeElement{session: d.session, key: id}, nil
}

func (d *fakeDocument) ElementsByIDOrName(_ context.Context, name string) ([]Element, error) {
	e := d.session.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ids[name] && !e.names[name] {
		return []Element{}, nil
	}
	return []Element{&fakeElement{session: d.session, key: name}}, nil
}

type fakeElement struct {
	session *fakeSession
	key     string
}

func (el *fakeElement) Type(_ context.Context, text string) error {
	e := el.session.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.typeErr != nil {
		return e.typeErr
	}
	e.typed[el.key] += text
	return nil
}

func (el *fakeElement) Click(_ context.Context) (Document, error) {
	e := el.session.engine
	e.mu.Lock()
	hook := e.onClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicked = append(e.clicked, el.key)
	if e.clickErr != nil {
		return nil, e.clickErr
	}
	el.session.submitted = true
	return &fakeDocument{session: el.session}, nil
}

func strPtr(s string) *string { return &s }
