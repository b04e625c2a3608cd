package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is the absolute session lifetime, measured from mint time.
// There is no refresh; after expiry the client re-verifies its init data.
const SessionTTL = 6 * time.Hour

// TokenCodec mints and verifies opaque session tokens (HS256 JWTs carrying
// the verified identity and an issued-at claim). Safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	User Identity `json:"user"`
}

// NewTokenCodec builds a codec signing with secret. now may be nil.
func NewTokenCodec(secret string, now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{secret: []byte(secret), now: now}
}

// Mint issues a fresh token for id.
func (c *TokenCodec) Mint(id Identity) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
		User: id,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks token integrity and age. Every failure collapses into
// ErrInvalidToken so the response can never leak which sub-check failed.
func (c *TokenCodec) Verify(token string) (Identity, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if claims.IssuedAt == nil {
		return Identity{}, ErrInvalidToken
	}
	if c.now().After(claims.IssuedAt.Time.Add(SessionTTL)) {
		return Identity{}, ErrInvalidToken
	}
	return claims.User, nil
}
