package auth

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

// FuzzTranslateCookie checks that translation keeps identity fields and never aliases
// the source cookie's expiry.
func FuzzTranslateCookie(f *testing.F) {
	f.Add([]byte("FedAuth\x00example.com\x00/owa"))
	f.Fuzz(func(t *testing.T, data []byte) {
		var c Cookie
		if err := fuzz.NewConsumer(data).GenerateStruct(&c); err != nil {
			return
		}

		out := TranslateCookie(c)

		if out.Name != c.Name || out.Domain != c.Domain || out.Value != c.Value || out.Secure != c.Secure {
			t.Fatalf("identity fields changed: %+v -> %+v", c, out)
		}
		if out.PathAttributeSpecified != (c.Path != nil) {
			t.Fatalf("path attribute flag %v for path %v", out.PathAttributeSpecified, c.Path)
		}
		if c.Path != nil && out.Path != *c.Path {
			t.Fatalf("path %q became %q", *c.Path, out.Path)
		}
		if (c.Expires == nil) != (out.Expires == nil) {
			t.Fatalf("session flag changed")
		}
		if c.Expires != nil {
			if out.Expires == c.Expires {
				t.Fatal("expiry pointer aliased")
			}
			if !out.Expires.Equal(*c.Expires) {
				t.Fatalf("expiry %v became %v", *c.Expires, *out.Expires)
			}
		}
	})
}
