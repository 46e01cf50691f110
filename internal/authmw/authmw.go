// Package authmw provides HTTP middleware for bearer token authentication
// on the enrichment API.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const scheme = "Bearer "

// BearerToken returns middleware that requires the Authorization header
// to carry a Bearer token equal to the expected value. The comparison
// is constant-time to avoid a timing side channel.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, scheme) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			got := []byte(auth[len(scheme):])

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
