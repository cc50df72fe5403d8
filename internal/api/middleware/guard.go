package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/core/ports"
	"github.com/gecofarm/farm-session/internal/core/service"
)

// RequireTier admits only resolved users of tier. A session still resolving
// is given up to wait before the client is told to retry.
func RequireTier(tier domain.RoleType, wait time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			resolver, ok := c.Get(ContextResolver).(ports.SessionResolver)
			if !ok {
				return echo.NewHTTPError(http.StatusInternalServerError, "session not bound")
			}

			state := resolver.Current()
			if !state.Resolved() && wait > 0 {
				ctx, cancel := context.WithTimeout(c.Request().Context(), wait)
				state, _ = resolver.AwaitResolved(ctx)
				cancel()
			}

			decision := service.Guard(state, tier)
			switch decision.Action {
			case service.GuardWait:
				return c.JSON(http.StatusAccepted, map[string]string{"status": "loading"})
			case service.GuardRedirect:
				c.Response().Header().Set(echo.HeaderLocation, decision.Location)
				if decision.Location == domain.RouteLogin {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error":    "authentication required",
						"redirect": decision.Location,
					})
				}
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":    "forbidden",
					"redirect": decision.Location,
				})
			}

			c.Set(ContextUser, state.User)
			return next(c)
		}
	}
}
