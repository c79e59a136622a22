// File: internal/legacy/cookie.go
package legacy

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Cookie is the legacy client's cookie model.
// PathAttributeSpecified separates "no path attribute" from an explicit path. An empty
// Path is sent on every path of the cookie's domain.
type Cookie struct {
	Domain                 string
	Name                   string
	Value                  string
	Path                   string
	Expires                *time.Time
	Secure                 bool
	PathAttributeSpecified bool
}

type cookieKey struct {
	domain string
	name   string
	path   string
}

func keyOf(c Cookie) cookieKey {
	return cookieKey{domain: strings.ToLower(c.Domain), name: c.Name, path: c.Path}
}

type storedCookie struct {
	Cookie
	seq uint64
	// hostOnly cookies came without a Domain attribute and match their host exactly.
	hostOnly bool
}

// CookieStore holds a client's cookies. A cookie's identity is its lowercased domain,
// name and path; adding a cookie with an existing identity replaces it in place.
// CookieStore implements http.CookieJar and is safe for concurrent use.
type CookieStore struct {
	mu      sync.RWMutex
	cookies map[cookieKey]*storedCookie
	nextSeq uint64
	now     func() time.Time
}

var _ http.CookieJar = (*CookieStore)(nil)

// NewCookieStore creates an empty store.
func NewCookieStore() *CookieStore {
	return &CookieStore{
		cookies: make(map[cookieKey]*storedCookie),
		now:     time.Now,
	}
}

// Add inserts c, replacing any cookie with the same domain, name and path.
func (s *CookieStore) Add(c Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(c, false)
}

func (s *CookieStore) addLocked(c Cookie, hostOnly bool) {
	k := keyOf(c)
	if existing, ok := s.cookies[k]; ok {
		existing.Cookie = c
		existing.hostOnly = hostOnly
		return
	}
	s.nextSeq++
	s.cookies[k] = &storedCookie{Cookie: c, seq: s.nextSeq, hostOnly: hostOnly}
}

// Remove deletes the cookie with the given identity, if present.
func (s *CookieStore) Remove(domain, name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, cookieKey{domain: strings.ToLower(domain), name: name, path: path})
}

// All returns a snapshot of every stored cookie in insertion order.
func (s *CookieStore) All() []Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*storedCookie, 0, len(s.cookies))
	for _, e := range s.cookies {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Cookie, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Cookie)
	}
	return out
}

// Len returns the number of stored cookies.
func (s *CookieStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cookies)
}

// Clear removes every cookie.
func (s *CookieStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = make(map[cookieKey]*storedCookie)
}

// Cookies returns the cookies to send with a request to u, longest path first.
func (s *CookieStore) Cookies(u *url.URL) []*http.Cookie {
	host := u.Hostname()
	if host == "" {
		return nil
	}
	reqPath := u.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}
	https := u.Scheme == "https"
	now := s.now()

	s.mu.RLock()
	matched := make([]*storedCookie, 0, len(s.cookies))
	for _, e := range s.cookies {
		if e.Expires != nil && !e.Expires.After(now) {
			continue
		}
		if e.Secure && !https {
			continue
		}
		if e.hostOnly && normalizeHost(host) != normalizeHost(e.Domain) {
			continue
		}
		if !e.hostOnly && !hostMatchesCookieDomain(host, e.Domain) {
			continue
		}
		if !pathMatchesCookiePath(reqPath, e.Path) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if len(matched[i].Path) != len(matched[j].Path) {
			return len(matched[i].Path) > len(matched[j].Path)
		}
		return matched[i].seq < matched[j].seq
	})

	out := make([]*http.Cookie, 0, len(matched))
	for _, e := range matched {
		out = append(out, &http.Cookie{Name: e.Name, Value: e.Value})
	}
	return out
}

// SetCookies stores cookies set by a response from u. A Max-Age of zero or less, or an
// expiry in the past, deletes the matching cookie. Cookies whose Domain attribute does
// not cover u's host, or names a single-label domain other than the host itself, are
// ignored. A cookie without a Domain attribute is only sent back to u's host.
func (s *CookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	now := s.now()
	host := normalizeHost(u.Hostname())
	if host == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hc := range cookies {
		c := Cookie{
			Domain:                 hc.Domain,
			Name:                   hc.Name,
			Value:                  hc.Value,
			Path:                   hc.Path,
			Secure:                 hc.Secure,
			PathAttributeSpecified: hc.Path != "",
		}
		domain, hostOnly, ok := cookieDomain(host, hc.Domain)
		if !ok {
			continue
		}
		c.Domain = domain
		if !c.PathAttributeSpecified {
			c.Path = defaultCookiePath(u.EscapedPath())
		}

		switch {
		case hc.MaxAge < 0:
			delete(s.cookies, keyOf(c))
			continue
		case hc.MaxAge > 0:
			exp := now.Add(time.Duration(hc.MaxAge) * time.Second)
			c.Expires = &exp
		case !hc.Expires.IsZero():
			if !hc.Expires.After(now) {
				delete(s.cookies, keyOf(c))
				continue
			}
			exp := hc.Expires
			c.Expires = &exp
		}
		s.addLocked(c, hostOnly)
	}
}

// cookieDomain resolves the domain a response from host may set for a Domain attribute
// of attr. It reports whether the cookie is host-only and whether it may be stored.
func cookieDomain(host, attr string) (domain string, hostOnly, ok bool) {
	domain = normalizeHost(attr)
	if domain == "" || domain == host && (net.ParseIP(host) != nil || !strings.Contains(host, ".")) {
		return host, true, true
	}
	if net.ParseIP(host) != nil || !strings.Contains(domain, ".") {
		return "", false, false
	}
	if !hostMatchesCookieDomain(host, domain) {
		return "", false, false
	}
	return domain, false, true
}

func hostMatchesCookieDomain(host, cookieDomain string) bool {
	host = normalizeHost(host)
	cookieDomain = normalizeHost(cookieDomain)
	if host == "" || cookieDomain == "" {
		return false
	}
	if host == cookieDomain {
		return true
	}
	return strings.HasSuffix(host, "."+cookieDomain)
}

func pathMatchesCookiePath(requestPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if cookiePath[len(cookiePath)-1] == '/' {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

// defaultCookiePath is the RFC 6265 section 5.1.4 default path for a request path.
func defaultCookiePath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(requestPath, "/")
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, ".")
	return strings.ToLower(host)
}
