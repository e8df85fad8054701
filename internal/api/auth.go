// SPDX-License-Identifier: MIT

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/irfnrdh/tensorflow-datasets/internal/log"
)

// requireToken guards mutating routes with bearer-token auth. With no token
// configured the daemon is open, matching single-user deployments; when one
// is set, comparison is constant-time.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.API.Token
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := log.WithComponentFromContext(r.Context(), "auth")
		reqToken := bearerToken(r)
		if reqToken == "" {
			logger.Warn().
				Str("event", "auth.missing_token").
				Msg("authorization header missing on mutating route")
			writeUnauthorized(w)
			return
		}
		if subtle.ConstantTimeCompare([]byte(reqToken), []byte(token)) != 1 {
			logger.Warn().
				Str("event", "auth.invalid_token").
				Msg("invalid api token")
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
