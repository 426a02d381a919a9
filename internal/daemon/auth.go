package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const unauthorizedBody = `{"error":"missing or invalid API token"}` + "\n"

// authMiddleware requires "Authorization: Bearer <server.api_token>" when a
// token is configured.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	expected := []byte(strings.TrimSpace(token))
	if len(expected) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok && subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), expected) == 1 {
			next(w, r)
			return
		}
		header := w.Header()
		header.Set("Content-Type", "application/json")
		header.Set("WWW-Authenticate", `Bearer realm="lrcforge"`)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(unauthorizedBody))
	}
}
