package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// requireAPIKey rejects requests whose X-API-Key header does not match the
// configured proxy secret. Hashing both sides first keeps the comparison
// constant-time regardless of key length.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	want := sha256.Sum256([]byte(s.cfg.ProxySecret))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := sha256.Sum256([]byte(r.Header.Get("X-API-Key")))
		if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Invalid or missing API key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
