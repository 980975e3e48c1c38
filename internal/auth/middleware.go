package auth

import (
	"net/http"
	"strings"

	"github.com/mastermarket/mastermarket/internal/platform/httpx"
	"github.com/mastermarket/mastermarket/internal/shared"
)

// Middleware attaches the bearer identity to the request context.
type Middleware struct {
	verifier *TokenVerifier
}

// NewMiddleware constructs Middleware.
func NewMiddleware(verifier *TokenVerifier) Middleware {
	return Middleware{verifier: verifier}
}

// Require rejects requests without a valid bearer token.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.identify(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mastermarket"`)
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
	})
}

// Optional attaches the identity when a valid token is present and otherwise
// lets the request through anonymously.
func (m Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := m.identify(r); err == nil {
			r = r.WithContext(shared.ContextWithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) identify(r *http.Request) (shared.Identity, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" || m.verifier == nil {
		return shared.Identity{}, ErrInvalidToken
	}
	return m.verifier.Verify(strings.TrimSpace(token))
}
