package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	middleware "github.com/Skotchmaster/userauth/internal/middleware/auth"
)

type Deps struct {
	AuthHandler *AuthHTTP
	UserHandler *UserHTTP
	TokenAuth   *middleware.TokenAuth
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	e.POST("/register", d.AuthHandler.Register)
	e.POST("/login", d.AuthHandler.Login)
	e.POST("/refresh", d.AuthHandler.Refresh, d.TokenAuth.RequireRefresh)
	e.POST("/logout", d.AuthHandler.LogOut, d.TokenAuth.RequireAccess)

	users := e.Group("/user")
	users.GET("/:id", d.UserHandler.GetUser)
	users.DELETE("/:id", d.UserHandler.DeleteUser)
}
