package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// AuthHandler serves the authentication endpoints of the bound browser
// session.
type AuthHandler struct {
	wait time.Duration
}

// NewAuthHandler returns an AuthHandler. wait bounds how long GET /auth/me
// blocks when asked to wait for resolution.
func NewAuthHandler(wait time.Duration) *AuthHandler {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &AuthHandler{wait: wait}
}

// Register creates an account and its profile.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  conflictResponse
// @Failure      503   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := ctxResolver(c)
	if err != nil {
		return err
	}

	role := domain.Role{Type: domain.RoleType(req.Role.Type), Position: req.Role.Position}
	if err := r.Register(c.Request().Context(), req.Name, req.Email, req.Password, role); err != nil {
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			return c.JSON(http.StatusConflict, conflictResponse{
				Error: "an account with this email already exists",
				Login: domain.RouteLogin,
			})
		}
		return err
	}

	return c.JSON(http.StatusCreated, registerResponse{User: r.Current().User})
}

// Login signs in and returns where the client should navigate.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := ctxResolver(c)
	if err != nil {
		return err
	}

	redirect, err := r.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Redirect: redirect, User: r.Current().User})
}

// Logout signs out of the bound session.
//
// @Summary      Logout
// @Tags         auth
// @Success      204
// @Failure      503  {object}  map[string]string
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	r, err := ctxResolver(c)
	if err != nil {
		return err
	}
	if err := r.Logout(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the current-user state.
//
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Param        wait  query     bool  false  "Block until the user is resolved"
// @Success      200   {object}  meResponse
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	r, err := ctxResolver(c)
	if err != nil {
		return err
	}

	st := r.Current()
	if c.QueryParam("wait") == "true" && !st.Resolved() {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.wait)
		st, _ = r.AwaitResolved(ctx)
		cancel()
	}
	return c.JSON(http.StatusOK, toMeResponse(st))
}

// UpdateMe changes the name or photo of the current user.
//
// @Summary      Update profile
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      updateProfileRequest  true  "Profile fields"
// @Success      200   {object}  domain.User
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/me [patch]
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := ctxResolver(c)
	if err != nil {
		return err
	}

	user, err := r.UpdateProfile(c.Request().Context(), domain.ProfilePatch{
		Name:         req.Name,
		ProfilePhoto: req.ProfilePhoto,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}
