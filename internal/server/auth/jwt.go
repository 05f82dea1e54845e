// Package auth mints and verifies the signed access tokens handed out by
// the account flows.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: the standard iat/exp plus the user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// Minter issues and verifies HS256 tokens with a fixed secret and validity.
// It holds no mutable state and is safe for concurrent use.
type Minter struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

func NewMinter(secret []byte, validity time.Duration) *Minter {
	return &Minter{secret: secret, validity: validity, now: time.Now}
}

// WithClock returns a copy of m that reads time from now.
func (m *Minter) WithClock(now func() time.Time) *Minter {
	c := *m
	c.now = now
	return &c
}

// Mint returns a signed token for userID, issued now and expiring after the
// configured validity.
func (m *Minter) Mint(userID string) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
		UserID: userID,
	})

	return token.SignedString(m.secret)
}

// Verify checks the signature and expiry of tokenString. It returns
// common.ErrTokenExpired for a well-signed but expired token and
// common.ErrInvalidToken for anything else that fails.
func (m *Minter) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" || claims.IssuedAt == nil {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// IssuedAtUnix is the iat claim in whole seconds.
func (c *Claims) IssuedAtUnix() int64 {
	return c.IssuedAt.Unix()
}
