// SPDX-License-Identifier: MIT
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

const bearerPrefix = "Bearer "

// requireToken enforces API token auth on everything under /api. The token
// is read from the live config on every request so a SIGHUP rotation takes
// effect without a restart. An unset token fails closed.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "auth")

		token := s.cfg().Daemon.APIToken
		if token == "" {
			logger.Error().
				Str(log.FieldEvent, "auth.fail_closed").
				Msg("API token not configured, denying access")
			writeUnauthorized(w)
			return
		}

		got := extractToken(r)
		if got == "" {
			logger.Warn().
				Str(log.FieldEvent, "auth.missing_token").
				Str(log.FieldPath, r.URL.Path).
				Msg("authorization header missing")
			writeUnauthorized(w)
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warn().
				Str(log.FieldEvent, "auth.invalid_token").
				Str(log.FieldPath, r.URL.Path).
				Msg("invalid api token")
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken reads the bearer token or the X-API-Token header. Query
// parameters are never accepted; they end up in access logs.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > len(bearerPrefix) &&
		strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return r.Header.Get("X-API-Token")
}
