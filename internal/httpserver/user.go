package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/userauth/internal/service"
)

type UserHTTP struct {
	Svc *service.AuthService
}

func userID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return uint(id), nil
}

func (h *UserHTTP) GetUser(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	user, err := h.Svc.GetUser(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found.")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed").SetInternal(err)
	}

	return c.JSON(http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

func (h *UserHTTP) DeleteUser(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	if err := h.Svc.DeleteUser(c.Request().Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found.")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed").SetInternal(err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "User deleted."})
}
