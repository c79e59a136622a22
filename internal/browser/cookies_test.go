// internal/browser/cookies_test.go
package browser

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/go-cmp/cmp"

	"github.com/xkilldash9x/formgate/internal/auth"
)

func TestConvertCookies(t *testing.T) {
	root := "/"
	owa := "/owa"
	exp := time.Unix(1893456000, 500000000).UTC()

	in := []*network.Cookie{
		{Name: "FedAuth", Value: "abc", Domain: "mail.example.com", Path: "/", Secure: true, Session: true, Expires: -1},
		nil,
		{Name: "pref", Value: "1", Domain: ".example.com", Path: "/owa", Expires: 1893456000.5},
		{Name: "bare", Value: "x", Domain: "mail.example.com"},
	}
	want := auth.CookieSet{
		{Domain: "mail.example.com", Name: "FedAuth", Value: "abc", Path: &root, Secure: true},
		{Domain: ".example.com", Name: "pref", Value: "1", Path: &owa, Expires: &exp},
		{Domain: "mail.example.com", Name: "bare", Value: "x"},
	}

	if diff := cmp.Diff(want, convertCookies(in)); diff != "" {
		t.Errorf("convertCookies mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertCookies_Empty(t *testing.T) {
	got := convertCookies(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil set, got %#v", got)
	}
}
