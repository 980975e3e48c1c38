package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, NewService(repo), nil).MountRoutes(r)
	return r
}

func TestHandlePatchProduct(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[3] = Product{ID: 3, Name: "Bread", Brand: "Hovis"}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPatch, "/products/3", strings.NewReader(`{"quantity":"800g"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "800g", body.Quantity)
	require.Equal(t, "Hovis", body.Brand)
}

func TestHandlePatchProductErrors(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"bad id", "/products/abc", `{}`, http.StatusBadRequest},
		{"bad json", "/products/1", `{`, http.StatusBadRequest},
		{"missing", "/products/1", `{"name":"x"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, tc.path, strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandleHistoryUnknownProduct(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/7/history", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
