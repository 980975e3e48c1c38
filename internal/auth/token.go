// Package auth verifies bearer tokens issued by the account service.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// ErrInvalidToken reports a missing, malformed, expired or forged token.
var ErrInvalidToken = fmt.Errorf("auth: invalid token: %w", shared.ErrUnauthenticated)

// Claims carries the user id in the standard subject claim.
type Claims struct {
	jwt.StandardClaims
}

// TokenVerifier validates HS256 tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier constructs a verifier for secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret required")
	}
	return &TokenVerifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify parses token and returns the identity it names.
func (v *TokenVerifier) Verify(token string) (shared.Identity, error) {
	claims := &Claims{}
	parser := &jwt.Parser{SkipClaimsValidation: true}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return shared.Identity{}, ErrInvalidToken
	}
	if err := claims.validAt(v.now()); err != nil {
		return shared.Identity{}, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return shared.Identity{}, ErrInvalidToken
	}
	return shared.Identity{UserID: userID}, nil
}

func (c *Claims) validAt(now time.Time) error {
	unix := now.Unix()
	if !c.VerifyExpiresAt(unix, true) || !c.VerifyNotBefore(unix, false) {
		return ErrInvalidToken
	}
	return nil
}

// Issue signs a token for userID valid for ttl. Used by seed tooling and tests.
func (v *TokenVerifier) Issue(userID int64, ttl time.Duration) (string, error) {
	now := v.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{StandardClaims: jwt.StandardClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}})
	return t.SignedString(v.secret)
}
