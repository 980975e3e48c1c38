package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/require"

	"github.com/mastermarket/mastermarket/internal/shared"
)

func newVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier("test-secret")
	require.NoError(t, err)
	return v
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Issue(42, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), id.UserID)
}

func TestVerifyRejects(t *testing.T) {
	v := newVerifier(t)
	other, err := NewTokenVerifier("other-secret")
	require.NoError(t, err)
	forged, err := other.Issue(42, time.Hour)
	require.NoError(t, err)

	expired, err := v.Issue(42, -time.Minute)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{StandardClaims: jwt.StandardClaims{
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"forged":     forged,
		"expired":    expired,
		"no subject": noSubject,
		"garbage":    "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.ErrorIs(t, err, shared.ErrUnauthenticated)
		})
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier("")
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := newVerifier(t)
	mw := NewMiddleware(v)
	token, err := v.Issue(7, time.Hour)
	require.NoError(t, err)

	var seen int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	mw.Require(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mw.Require(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, int64(7), seen)

	seen = -1
	rec = httptest.NewRecorder()
	mw.Optional(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, seen)
}
