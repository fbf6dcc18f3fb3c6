package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKey rejects requests whose X-API-Key header does not match the
// configured key. An empty configured key disables the check, which is the
// default for installs behind a trusted network.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				got := r.Header.Get("X-API-Key")
				if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					w.Write([]byte(`{"error": "Invalid or missing API key"}`))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
