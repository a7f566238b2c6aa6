package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	jwthelp "github.com/Skotchmaster/userauth/internal/jwt"
	"github.com/Skotchmaster/userauth/internal/logging"
	"github.com/Skotchmaster/userauth/internal/service"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

const ClaimsKey = "token_claims"

type Validator interface {
	Validate(ctx context.Context, raw string, kind tokens.Kind) (*tokens.Claims, error)
}

type TokenAuth struct {
	Tokens Validator
}

func NewTokenAuth(v Validator) *TokenAuth {
	return &TokenAuth{Tokens: v}
}

func (m *TokenAuth) RequireAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return m.require(next, tokens.KindAccess, jwthelp.AccessCookie)
}

func (m *TokenAuth) RequireRefresh(next echo.HandlerFunc) echo.HandlerFunc {
	return m.require(next, tokens.KindRefresh, jwthelp.RefreshCookie)
}

func (m *TokenAuth) require(next echo.HandlerFunc, kind tokens.Kind, cookie string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		raw := jwthelp.RawToken(c.Request(), cookie)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+string(kind)+" token")
		}

		claims, err := m.Tokens.Validate(ctx, raw, kind)
		if err != nil {
			if errors.Is(err, service.ErrInvalidToken) {
				logging.FromContext(ctx).Warn("token_rejected", "kind", kind, "error", err)
				c.SetCookie(jwthelp.DeleteCookie(cookie, "/"))
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid, expired or revoked token")
			}
			logging.FromContext(ctx).Error("token_check_failed", "kind", kind, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}

		c.Set(ClaimsKey, claims)
		c.Set("user_id", claims.Subject)
		return next(c)
	}
}

// ClaimsFrom returns the claims stored by RequireAccess or RequireRefresh.
func ClaimsFrom(c echo.Context) (*tokens.Claims, bool) {
	claims, ok := c.Get(ClaimsKey).(*tokens.Claims)
	return claims, ok && claims != nil
}
