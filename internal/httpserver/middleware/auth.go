// Package middleware provides HTTP middleware for the evaluation API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKey returns middleware that requires one of keys as an X-API-Key
// header or a bearer token. With no keys configured every request passes.
func APIKey(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validAPIKey(requestKey(r), keys) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="deke"`)
				http.Error(w, "Unauthorized: invalid or missing API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestKey extracts the API key from the X-API-Key header, falling
// back to an Authorization bearer token.
func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func validAPIKey(key string, keys []string) bool {
	if key == "" {
		return false
	}
	valid := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			valid = true
		}
	}
	return valid
}
