package property

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomkartz/roomkartz-api/internal/auth"
	"github.com/roomkartz/roomkartz-api/internal/httputil"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

// newTestRouter mounts the handlers with an identity taken from the X-Test-UID header
func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/properties", h.ListAll)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				uid := req.Header.Get("X-Test-UID")
				if uid != "" {
					id := &auth.Identity{Subject: user.Subject{Kind: user.ByExternal, Value: uid}}
					req = req.WithContext(auth.WithIdentity(req.Context(), id))
				}
				next.ServeHTTP(w, req)
			})
		})
		r.Get("/my-properties", h.ListOwn)
		r.Post("/add-property", h.Add)
		r.Put("/update-property/{id}", h.Update)
		r.Delete("/delete-property/{id}", h.Delete)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-Test-UID", uid)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Code
}

func TestHandler_Lifecycle(t *testing.T) {
	svc, repo := newTestService(t, nil)
	createOwner(t, repo, "o1")
	router := newTestRouter(NewHandler(svc))

	rec := do(t, router, http.MethodPost, "/add-property", "o1", `{"address":"X","rent":5000,"wifi":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var added AddPropertyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&added))
	assert.Equal(t, "success", added.Status)
	assert.Equal(t, user.StatusOpen, added.Property.Status)
	assert.True(t, added.Property.WiFi)
	id := added.Property.ID

	rec = do(t, router, http.MethodPut, "/update-property/"+id, "o1", `{"status":"Closed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated user.Property
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, user.StatusClosed, updated.Status)
	assert.Equal(t, 5000.0, updated.Rent)

	rec = do(t, router, http.MethodGet, "/properties", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []user.Property
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)

	rec = do(t, router, http.MethodDelete, "/delete-property/"+id, "o1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msg httputil.MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, "Property deleted successfully", msg.Message)

	rec = do(t, router, http.MethodGet, "/my-properties", "o1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"properties":[]}`, rec.Body.String())
}

func TestHandler_StringRent(t *testing.T) {
	svc, repo := newTestService(t, nil)
	createOwner(t, repo, "o1")
	router := newTestRouter(NewHandler(svc))

	rec := do(t, router, http.MethodPost, "/add-property", "o1", `{"address":"X","rent":"4500"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var added AddPropertyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&added))
	assert.Equal(t, 4500.0, added.Property.Rent)

	for _, body := range []string{`{"rent":"abc"}`, `{"rent":-1}`, `{"rent":0}`, `{"rent":true}`} {
		rec = do(t, router, http.MethodPut, "/update-property/"+added.Property.ID, "o1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, httputil.CodeInvalidRent, errorCode(t, rec), body)
	}

	rec = do(t, router, http.MethodPut, "/update-property/"+added.Property.ID, "o1", `{"status":"Maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidStatus, errorCode(t, rec))
}

func TestHandler_Errors(t *testing.T) {
	svc, repo := newTestService(t, nil)
	createOwner(t, repo, "o1")
	createTenant(t, repo, "u1")
	router := newTestRouter(NewHandler(svc))

	rec := do(t, router, http.MethodPost, "/add-property", "u1", `{"address":"X","rent":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodeNotOwner, errorCode(t, rec))

	rec = do(t, router, http.MethodPut, "/update-property/nope", "u1", `{"rent":"abc"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPut, "/update-property/nope", "o1", `{"rent":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httputil.CodePropertyNotFound, errorCode(t, rec))

	rec = do(t, router, http.MethodDelete, "/delete-property/nope", "o1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/add-property", "o1", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidRequestBody, errorCode(t, rec))

	rec = do(t, router, http.MethodPost, "/add-property", "o1", `{"rent":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/my-properties", "ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/my-properties", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseRent(t *testing.T) {
	assert.Nil(t, parseRent(nil))
	assert.Nil(t, parseRent(json.RawMessage("null")))
	assert.Equal(t, 12.5, *parseRent(json.RawMessage("12.5")))
	assert.Equal(t, 900.0, *parseRent(json.RawMessage(`" 900 "`)))
	assert.True(t, math.IsNaN(*parseRent(json.RawMessage(`"ten"`))))
	assert.True(t, math.IsNaN(*parseRent(json.RawMessage(`{}`))))
}

