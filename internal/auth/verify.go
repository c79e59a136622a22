// File: internal/auth/verify.go
package auth

// Verify reports whether set contains a cookie named marker.
func Verify(set CookieSet, marker string) bool {
	for _, c := range set {
		if c.Name == marker {
			return true
		}
	}
	return false
}
