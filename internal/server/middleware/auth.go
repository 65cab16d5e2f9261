package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminAuth guards the platform treasury routes with the static key from
// server.admin_api_key. Clients present the key either as a Bearer token or
// in X-API-Key. An empty configured key disables the guard, which is the
// sim-mode default.
func AdminAuth(adminKey string) func(http.Handler) http.Handler {
	keyBytes := []byte(adminKey)

	return func(next http.Handler) http.Handler {
		if adminKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedKey(r)
			if presented == "" {
				denyAdmin(w, "admin key required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), keyBytes) != 1 {
				denyAdmin(w, "admin key rejected")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey pulls the admin key from the request. The Bearer scheme wins
// over X-API-Key when both are present.
func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func denyAdmin(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
