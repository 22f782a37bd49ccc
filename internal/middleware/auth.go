package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WebhookSecretHeader carries the secret the platform echoes on every
// webhook delivery.
const WebhookSecretHeader = "X-Max-Bot-Api-Secret"

// RequireSecret rejects requests whose header does not carry secret.
// An empty secret disables the check.
func RequireSecret(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		want := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(header))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
