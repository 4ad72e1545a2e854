package auth

import (
	"net/http"
	"strings"

	"cosmoz-server/internal/utils"
)

const (
	HeaderName = "X-API-Key"
	QueryParam = "api_key"
)

// KeyFromRequest reads the key from the header, then the query string.
func KeyFromRequest(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderName)); k != "" {
		return k
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryParam))
}

// Require rejects requests without a valid key with 401 and the reason.
func Require(c Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, reason := c.Check(r.Context(), KeyFromRequest(r))
			if !ok {
				utils.WriteError(w, http.StatusUnauthorized, "API key rejected: "+reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
