package middleware

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"deskly/pkg/auth"
	"deskly/pkg/logger"
)

// Authentication verifies the bearer token and stores the caller identity in
// the request context. Routes behind this middleware can rely on
// auth.FromContext returning a verified identity.
func Authentication(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}

			identity, err := auth.ParseValidate(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				log.Warn("Token validation failed",
					"request_id", requestIDFromContext(r),
					"path", r.URL.Path,
					"error", err,
				)
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), identity)))
		})
	}
}

// RequireAdmin gates administrative routes. The registry services expose no
// authorization of their own; this is the capability check the boundary owns.
func RequireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		identity, ok := auth.FromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !identity.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "Administrator role required")
			return
		}
		next(w, r, ps)
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
