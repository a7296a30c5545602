package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/roomkartz/roomkartz-api/internal/httputil"
	"github.com/roomkartz/roomkartz-api/internal/logging"
)

// Middleware handles authentication for protected routes
type Middleware struct {
	verifier Verifier
}

func NewMiddleware(verifier Verifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// RequireAuth accepts only "Authorization: Bearer <token>" and stores the
// verified Identity in the request context
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
			return
		}

		id, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			logging.GetLoggerFromContext(r.Context()).Debug("token rejected", "error", err.Error())
			if errors.Is(err, ErrExpiredToken) {
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
				return
			}
			httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			return
		}

		ctx := logging.Annotate(WithIdentity(r.Context(), id),
			"subject_kind", string(id.Subject.Kind),
			"subject", id.Subject.Value,
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
