package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/gecofarm/farm-session/docs"
	"github.com/gecofarm/farm-session/internal/api/handler"
	"github.com/gecofarm/farm-session/internal/api/middleware"
	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/core/ports"
	"github.com/gecofarm/farm-session/internal/infrastructure/http/handlers"
)

// Deps carries everything NewRouter wires into the routes.
type Deps struct {
	Registry     ports.SessionRegistry
	Tokens       *middleware.SessionTokens
	Limiter      middleware.Limiter // nil disables rate limiting
	Log          zerolog.Logger
	CORSOrigin   string
	CookieSecure bool
	GuardWait    time.Duration
	Readiness    []handlers.Dependency
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     []string{deps.CORSOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(middleware.Metrics())

	session := middleware.Session(middleware.SessionConfig{
		Tokens:       deps.Tokens,
		Registry:     deps.Registry,
		CookieSecure: deps.CookieSecure,
	})

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.GuardWait)
	streamHandler := handler.NewUserStreamHandler(deps.CORSOrigin, deps.Log)

	auth := e.Group("/auth", session)
	auth.POST("/register", authHandler.Register, middleware.RateLimit(deps.Limiter, "register", deps.Log))
	auth.POST("/login", authHandler.Login, middleware.RateLimit(deps.Limiter, "login", deps.Log))
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authHandler.Me)
	auth.PATCH("/me", authHandler.UpdateMe)
	auth.GET("/me/stream", streamHandler.Stream)

	// --- Tier dashboards ---
	dashboardHandler := handler.NewDashboardHandler()
	e.GET(domain.RouteAdmin, dashboardHandler.Admin, session, middleware.RequireTier(domain.RoleAdmin, deps.GuardWait))
	e.GET(domain.RouteEmployee, dashboardHandler.Employee, session, middleware.RequireTier(domain.RoleEmployee, deps.GuardWait))

	// --- Health checks (no session required) ---
	healthHandler := handlers.NewHealthHandler()
	readinessHandler := handlers.NewReadinessHandler(deps.Readiness...)

	e.GET("/health", healthHandler.Liveness)           // liveness: process is up
	e.GET("/health/ready", readinessHandler.Readiness) // readiness: stores reachable

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
