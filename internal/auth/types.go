// File: internal/auth/types.go
package auth

import "time"

// DefaultMarkerCookie is the cookie whose presence marks a successful login.
const DefaultMarkerCookie = "FedAuth"

// DefaultSettleWait is the pause after page load and after form submission.
const DefaultSettleWait = 1500 * time.Millisecond

// Credentials are the username and password typed into the login form.
type Credentials struct {
	Username string
	Password string
}

// FormLocator identifies the login form controls in the loaded document.
// UsernameField and PasswordField match an id or a name attribute; SubmitButton matches an id.
type FormLocator struct {
	UsernameField string
	PasswordField string
	SubmitButton  string
}

// DefaultFormLocator returns the locator for the stock forms-based login page.
func DefaultFormLocator() FormLocator {
	return FormLocator{
		UsernameField: "UserName",
		PasswordField: "Password",
		SubmitButton:  "submitButton",
	}
}

// Cookie is a cookie as held by the navigation engine's jar.
// A nil Path means the cookie carried no path attribute. A nil Expires marks a session cookie.
type Cookie struct {
	Domain  string
	Name    string
	Value   string
	Path    *string
	Expires *time.Time
	Secure  bool
}

// CookieSet is the jar contents captured at the end of a handshake.
type CookieSet []Cookie

// Names returns the cookie names in capture order.
func (s CookieSet) Names() []string {
	names := make([]string, 0, len(s))
	for _, c := range s {
		names = append(names, c.Name)
	}
	return names
}

// SessionOptions tunes the navigation session used for one handshake.
type SessionOptions struct {
	JavaScript        bool
	CSS               bool
	FollowRedirects   bool
	ResyncAjax        bool
	FailOnStatus      bool
	FailOnScriptError bool
}

// DefaultSessionOptions runs scripts, skips stylesheets, follows redirects, waits for
// in-flight XHRs after each step, and fails hard on error statuses and script errors.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		JavaScript:        true,
		CSS:               false,
		FollowRedirects:   true,
		ResyncAjax:        true,
		FailOnStatus:      true,
		FailOnScriptError: true,
	}
}
