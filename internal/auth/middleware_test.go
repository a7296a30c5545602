package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomkartz/roomkartz-api/internal/httputil"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

func protected(t *testing.T, v Verifier) (http.Handler, *Identity) {
	t.Helper()
	seen := &Identity{}
	h := NewMiddleware(v).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		*seen = *id
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, seen
}

func callWithHeader(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	svc, err := NewPasetoService(testKey, time.Hour)
	require.NoError(t, err)
	token, err := svc.Issue("u1", user.RoleOwner)
	require.NoError(t, err)

	h, seen := protected(t, svc)

	rec := callWithHeader(h, "Bearer "+token)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, user.Subject{Kind: user.ByID, Value: "u1"}, seen.Subject)
	assert.Equal(t, user.RoleOwner, seen.Role)
}

func TestRequireAuth_Rejections(t *testing.T) {
	svc, err := NewPasetoService(testKey, time.Hour)
	require.NoError(t, err)

	issuedAt := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issuedAt }
	expired, err := svc.Issue("u1", user.RoleUser)
	require.NoError(t, err)
	svc.now = time.Now

	h, _ := protected(t, svc)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", httputil.CodeMissingAuth},
		{"wrong scheme", "Token abc", httputil.CodeInvalidAuthHeader},
		{"empty bearer", "Bearer ", httputil.CodeInvalidAuthHeader},
		{"garbage token", "Bearer not-a-token", httputil.CodeInvalidToken},
		{"expired token", "Bearer " + expired, httputil.CodeTokenExpired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := callWithHeader(h, tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var body httputil.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestIdentityFromContext_Missing(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IdentityFromContext(WithIdentity(context.Background(), nil))
	assert.False(t, ok)
}

func TestRequireAuth_LogsSubject(t *testing.T) {
	svc, err := NewPasetoService(testKey, time.Hour)
	require.NoError(t, err)
	token, err := svc.Issue("u1", user.RoleOwner)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter(&buf, true)
	h, _ := protected(t, svc)

	rec := callWithHeader(logging.RequestLogger(logger)(h), "Bearer "+token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "subject_kind=id")
	assert.Contains(t, out, "subject=u1")
}
