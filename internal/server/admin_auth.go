package server

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// adminAuthMiddleware gates the admin surface behind a bearer key checked
// against its bcrypt hash from config. Administrator identity (accounts,
// login) is owned by an outer system; this is only the gate between it and
// the session controls.
func adminAuthMiddleware(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			key, found := strings.CutPrefix(auth, "Bearer ")
			if !found || key == "" {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
