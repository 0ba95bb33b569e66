package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth gate messages.
const (
	msgNoAPIKey      = "No API key"
	msgInvalidHeader = "Invalid Authorization header"
	msgInvalidAPIKey = "Invalid API key"
)

const bearerPrefix = "Bearer "

// authMiddleware admits requests carrying "Authorization: Bearer <key>" for
// one of the configured keys. It is a pass-through when auth is disabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if !s.cfg.Auth.Enabled {
		return next
	}
	keys := make([][]byte, 0, len(s.cfg.Auth.Keys))
	for _, k := range s.cfg.Auth.Keys {
		keys = append(keys, []byte(k))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.rejectAuth(w, r, msgNoAPIKey, "missing header")
			return
		}
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			s.rejectAuth(w, r, msgInvalidHeader, "malformed header")
			return
		}
		if !keyAllowed(keys, []byte(strings.TrimSpace(token))) {
			s.rejectAuth(w, r, msgInvalidAPIKey, "unknown key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyAllowed compares token against every key so the time taken does not
// depend on which key matched.
func keyAllowed(keys [][]byte, token []byte) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, token)
	}
	return found == 1
}

func (s *Server) rejectAuth(w http.ResponseWriter, r *http.Request, msg, reason string) {
	s.observer.IncrementAuthRejections()
	s.logger.Warn("request rejected by auth gate",
		"reason", reason,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestIDFrom(r.Context()),
	)
	writeText(w, statusFor(KindUnauthorized), msg)
}
