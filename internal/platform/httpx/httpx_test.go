package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/mastermarket/mastermarket/internal/shared"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("wrap: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrInvalidArgument, http.StatusBadRequest},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{shared.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusOf(tc.err), "%v", tc.err)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("observation 4: %w", shared.ErrNotFound))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, http.StatusNotFound, body.Status)
	require.Equal(t, "observation 4: not found", body.Detail)
}

func TestValidationProblemListsFields(t *testing.T) {
	type input struct {
		StoreName string `validate:"required"`
	}
	err := validator.New().Struct(input{})
	rec := httptest.NewRecorder()
	ValidationProblem(rec, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]string{"StoreName": "required"}, body.Fields)
}

func TestRequestParsing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&lat=51.5&bad=x", nil)
	v, err := QueryInt(r, "limit", 10)
	require.NoError(t, err)
	require.Equal(t, 5, v)
	v, err = QueryInt(r, "missing", 10)
	require.NoError(t, err)
	require.Equal(t, 10, v)
	_, err = QueryInt(r, "bad", 10)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	f, err := QueryFloat(r, "lat")
	require.NoError(t, err)
	require.InDelta(t, 51.5, f, 1e-9)
	_, err = QueryFloat(r, "lng")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	id, err := PathInt64("42", "id")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)
	_, err = PathInt64("0", "id")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	var target struct{ Name string }
	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	require.ErrorIs(t, DecodeJSON(bad, &target), shared.ErrInvalidArgument)
}
