package tokens

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrWrongKind  = errors.New("unexpected token type")
	ErrMissingJTI = errors.New("token has no jti")
)

type Claims struct {
	Type  Kind `json:"type"`
	Fresh bool `json:"fresh"`
	jwt.RegisteredClaims
}

func Sign(claims Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ClaimsFromToken verifies signature and registered time claims, then checks
// the token is of the expected kind and carries a jti.
func ClaimsFromToken(tokenStr string, secret []byte, kind Kind) (*Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected sign method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != kind {
		return nil, ErrWrongKind
	}
	if claims.ID == "" {
		return nil, ErrMissingJTI
	}
	return &claims, nil
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad subject %q: %w", c.Subject, err)
	}
	return uint(id), nil
}
