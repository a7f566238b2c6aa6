package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	jwthelp "github.com/Skotchmaster/userauth/internal/jwt"
	"github.com/Skotchmaster/userauth/internal/logging"
	middleware "github.com/Skotchmaster/userauth/internal/middleware/auth"
	"github.com/Skotchmaster/userauth/internal/service"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func bindCredentials(c echo.Context) (*credentialsRequest, error) {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	req, err := bindCredentials(c)
	if err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return err
	}

	if _, err := h.Svc.Register(ctx, req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrConflict):
			return echo.NewHTTPError(http.StatusConflict, "conflict")
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "register failed").SetInternal(err)
	}

	return c.JSON(http.StatusCreated, messageResponse{Message: "User created successfully."})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	req, err := bindCredentials(c)
	if err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return err
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) || errors.Is(err, service.ErrValidation) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials.")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed").SetInternal(err)
	}

	c.SetCookie(jwthelp.CreateCookie(jwthelp.AccessCookie, res.AccessToken, "/", res.AccessExp))
	c.SetCookie(jwthelp.CreateCookie(jwthelp.RefreshCookie, res.RefreshToken, "/", res.RefreshExp))
	l.Info("login_successful")

	return c.JSON(http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	res, err := h.Svc.Refresh(ctx, claims)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			c.SetCookie(jwthelp.DeleteCookie(jwthelp.RefreshCookie, "/"))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid, expired or revoked token")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "refresh failed").SetInternal(err)
	}

	// the consumed refresh token is dead from here on
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.RefreshCookie, "/"))
	c.SetCookie(jwthelp.CreateCookie(jwthelp.AccessCookie, res.AccessToken, "/", res.AccessExp))
	return c.JSON(http.StatusOK, refreshResponse{AccessToken: res.AccessToken})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var req logoutRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
	}
	if err := h.Svc.Logout(ctx, claims, req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid, expired or revoked token")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed").SetInternal(err)
	}

	c.SetCookie(jwthelp.DeleteCookie(jwthelp.RefreshCookie, "/"))
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.AccessCookie, "/"))
	return c.JSON(http.StatusOK, messageResponse{Message: "Successfully logged out."})
}
