// internal/browser/cookies.go
package browser

import (
	"math"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/xkilldash9x/formgate/internal/auth"
)

// convertCookies maps CDP cookies onto the auth model, keeping CDP's order.
func convertCookies(in []*network.Cookie) auth.CookieSet {
	out := make(auth.CookieSet, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, convertCookie(c))
	}
	return out
}

func convertCookie(c *network.Cookie) auth.Cookie {
	ck := auth.Cookie{
		Domain: c.Domain,
		Name:   c.Name,
		Value:  c.Value,
		Secure: c.Secure,
	}
	if c.Path != "" {
		p := c.Path
		ck.Path = &p
	}
	// CDP reports session cookies with Session set and Expires at -1.
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		exp := time.Unix(int64(sec), int64(frac*1e9)).UTC()
		ck.Expires = &exp
	}
	return ck
}
