package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/csvreorder/csvreorder/internal/config"
)

// APIKeyAuth checks the X-API-Key header against the configured keys when
// RequireAPIKey is set. Otherwise every request passes through.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	keys := make([][]byte, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		keys[i] = []byte(k)
	}

	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key", "path", r.URL.Path, "ip", ClientIP(r))
				writeJSONError(w, http.StatusUnauthorized, "Missing API key", "Send the X-API-Key header", "AUTH001")
				return
			}
			if !validKey([]byte(apiKey), keys) {
				slog.Warn("auth: invalid API key", "path", r.URL.Path, "ip", ClientIP(r))
				writeJSONError(w, http.StatusForbidden, "Invalid API key", "Check the key with your administrator", "AUTH002")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// validKey compares against every key in constant time.
func validKey(key []byte, keys [][]byte) bool {
	valid := 0
	for _, k := range keys {
		valid |= subtle.ConstantTimeCompare(key, k)
	}
	return valid == 1
}
