package httpserver

import (
	"net/http"
	"net/mail"
	"strings"

	apperrors "github.com/dummy-library/server/internal/errors"
)

// userEmail returns the validated caller identity set by requireUser.
func userEmail(r *http.Request) string {
	return r.Header.Get("X-User-Email")
}

// requireUser enforces a well-formed X-User-Email header on state-changing
// and admin endpoints.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.Header.Get("X-User-Email"))
		if email == "" {
			apperrors.WriteError(w, apperrors.ErrCodeUserEmailRequired, "X-User-Email header is required")
			return
		}
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			apperrors.WriteError(w, apperrors.ErrCodeInvalidEmail, "X-User-Email header is not a valid email address")
			return
		}
		r.Header.Set("X-User-Email", email)
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates the admin surface on the literal admin identity.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userEmail(r) != AdminEmail {
			apperrors.WriteError(w, apperrors.ErrCodeForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
