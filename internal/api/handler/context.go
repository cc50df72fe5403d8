package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gecofarm/farm-session/internal/api/middleware"
	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/core/ports"
)

// ctxResolver returns the resolver bound by the Session middleware.
func ctxResolver(c echo.Context) (ports.SessionResolver, error) {
	r, ok := c.Get(middleware.ContextResolver).(ports.SessionResolver)
	if !ok || r == nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "session not bound")
	}
	return r, nil
}

// ctxUser returns the user admitted by RequireTier.
func ctxUser(c echo.Context) (*domain.User, error) {
	u, ok := c.Get(middleware.ContextUser).(*domain.User)
	if !ok || u == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return u, nil
}
