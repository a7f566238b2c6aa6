package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	jwthelp "github.com/Skotchmaster/userauth/internal/jwt"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

// Ledger is the durable set of revoked token ids.
type Ledger interface {
	Revoke(ctx context.Context, jti string, at time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenService mints self-contained tokens and decides whether a presented
// token is still honoured. Revocation never touches the token; it only
// records its jti in the Ledger.
type TokenService struct {
	Ledger        Ledger
	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TokenService) secret(kind tokens.Kind) []byte {
	if kind == tokens.KindRefresh {
		return s.RefreshSecret
	}
	return s.JWTSecret
}

func (s *TokenService) issue(userID uint, kind tokens.Kind, fresh bool, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := tokens.Claims{
		Type:  kind,
		Fresh: fresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        jwthelp.NewJTI(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := tokens.Sign(claims, s.secret(kind))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return token, exp, nil
}

func (s *TokenService) IssueAccessToken(userID uint, fresh bool) (string, time.Time, error) {
	return s.issue(userID, tokens.KindAccess, fresh, s.AccessTTL)
}

func (s *TokenService) IssueRefreshToken(userID uint) (string, time.Time, error) {
	return s.issue(userID, tokens.KindRefresh, false, s.RefreshTTL)
}

// Validate accepts raw only if the signature matches, it has not expired,
// it is of the requested kind and its jti is absent from the ledger.
func (s *TokenService) Validate(ctx context.Context, raw string, kind tokens.Kind) (*tokens.Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing %s token", ErrInvalidToken, kind)
	}

	claims, err := tokens.ClaimsFromToken(raw, s.secret(kind), kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	revoked, err := s.Ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token has been revoked", ErrInvalidToken)
	}
	return claims, nil
}

// Revoke moves the token's jti to the revoked state. It returns
// repo.ErrAlreadyRevoked when another request got there first.
func (s *TokenService) Revoke(ctx context.Context, claims *tokens.Claims) error {
	return s.Ledger.Revoke(ctx, claims.ID, s.now())
}

// MaxLifetime bounds how long any issued token can remain valid.
func (s *TokenService) MaxLifetime() time.Duration {
	return max(s.AccessTTL, s.RefreshTTL)
}
