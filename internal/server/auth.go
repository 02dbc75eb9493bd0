package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
)

// WWW-Authenticate challenges sent with 401 responses.
const (
	challengeMissing = `Bearer realm="visiq"`
	challengeInvalid = `Bearer realm="visiq" error="invalid_token"`
)

// authMiddleware enforces Bearer token authentication on protected routes:
//
//	Authorization: Bearer <apiKey>
//
// An empty apiKey disables auth entirely; the startup warning covers that
// case so nothing is logged per request. Rejected requests get a
// WWW-Authenticate challenge, and the presented token value is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		switch token := bearerToken(r); {
		case token == "":
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", challengeMissing)
			http.Error(w, "authorization required", http.StatusUnauthorized)

		case token != apiKey:
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", challengeInvalid)
			http.Error(w, "invalid token", http.StatusUnauthorized)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
