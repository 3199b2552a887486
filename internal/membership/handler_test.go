package membership

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookledger/internal/domain"
	"bookledger/internal/httpx"
)

func TestHandlerPeople(t *testing.T) {
	svc, _ := setup(t)
	r := chi.NewRouter()
	NewHandler(svc).Mount(r)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	rec := do(http.MethodPost, "/people", `{"first_name":"Ana","last_name":"Lima","national_id":"529.982.247-25"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "digest")
	var person domain.Person
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&person))
	assert.Equal(t, "4725", person.NationalIDSuffix)

	rec = do(http.MethodPost, "/people", `{"first_name":"Bia","last_name":"Lima","national_id":"52998224725"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var errBody httpx.ErrResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	assert.Equal(t, "conflict", errBody.Code)

	rec = do(http.MethodPost, "/people", `{"first_name":"Bia","last_name":"Lima","national_id":"00000000000"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/people", `{"first_name":"Bia","password":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/people?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var people []domain.Person
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&people))
	assert.Len(t, people, 1)

	rec = do(http.MethodGet, "/people?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/people/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/people/9", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodDelete, "/people/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(http.MethodDelete, "/people/1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
