package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/treedata/internal/config"
	"github.com/JonMunkholm/treedata/internal/logging"
)

// authError is written for rejected requests. It has the same shape as the
// API's other error bodies.
type authError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	errMissingKey = authError{
		Error:   "missing API key",
		Message: "missing API key",
		Action:  "Send the key in the X-API-Key header",
		Code:    "AUTH001",
	}
	errInvalidKey = authError{
		Error:   "invalid API key",
		Message: "invalid API key",
		Action:  "Check the API key with your administrator",
		Code:    "AUTH002",
	}
)

// APIKeyAuth returns middleware that validates the caller's API key against
// the configured keys. The key is read from X-API-Key, or from an
// "Authorization: Bearer" header.
//
// If RequireAPIKey is false, all requests pass through.
// If RequireAPIKey is true but no keys are configured, all requests are rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := requestAPIKey(r)
			if apiKey == "" {
				reject(w, r, http.StatusUnauthorized, errMissingKey)
				return
			}
			if !isValidAPIKey(apiKey, cfg.APIKeys) {
				reject(w, r, http.StatusForbidden, errInvalidKey)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func reject(w http.ResponseWriter, r *http.Request, status int, body authError) {
	logging.FromContext(r.Context()).Warn("auth: "+body.Error,
		"path", r.URL.Path,
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// isValidAPIKey checks if the provided key matches any configured key.
// Every key is compared in constant time so the duration does not depend
// on which key matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
