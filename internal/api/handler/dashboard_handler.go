package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// DashboardHandler serves the tier landing pages behind RequireTier.
type DashboardHandler struct{}

func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

// Admin
//
// @Summary      Admin dashboard
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  dashboardResponse
// @Success      202  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /admin [get]
func (h *DashboardHandler) Admin(c echo.Context) error {
	return h.render(c, domain.RoleAdmin)
}

// Employee
//
// @Summary      Employee dashboard
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  dashboardResponse
// @Success      202  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /employee [get]
func (h *DashboardHandler) Employee(c echo.Context) error {
	return h.render(c, domain.RoleEmployee)
}

func (h *DashboardHandler) render(c echo.Context, tier domain.RoleType) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dashboardResponse{Tier: tier, User: user})
}
