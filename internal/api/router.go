package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/sdcourse/auth-api/docs"
	"github.com/sdcourse/auth-api/internal/api/handler"
	"github.com/sdcourse/auth-api/internal/api/middleware"
	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/ports"
	"github.com/sdcourse/auth-api/pkg/logger"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Auth   ports.AuthService
	Users  ports.UserService
	Guard  ports.Guard
	Health map[string]handler.Pinger
	Log    zerolog.Logger

	// Registerer receives the HTTP request metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Dependencies) *echo.Echo {
	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestContext(d.Log))
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "auth",
		Registerer: d.Registerer,
	}))

	// --- Auth routes (public) ---
	authHandler := handler.NewAuthHandler(d.Auth)
	auth := e.Group("/api/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// --- User routes (guarded per route) ---
	authorize := func(check middleware.CheckFunc) echo.MiddlewareFunc {
		return middleware.Authorize(d.Guard, check)
	}
	authenticated := authorize(middleware.Authenticated())
	adminOnly := authorize(middleware.Role(domain.RoleAdmin))
	ownerOrAdmin := authorize(middleware.OwnerOrAdmin("id", d.Users.OwnerOf))

	userHandler := handler.NewUserHandler(d.Users)
	users := e.Group("/api/users")
	users.GET("", userHandler.List, adminOnly)
	users.GET("/list", userHandler.ListAll, adminOnly)
	users.GET("/me", userHandler.Me, authenticated)
	users.GET("/:id", userHandler.Get, ownerOrAdmin)
	users.PUT("/:id", userHandler.Update, ownerOrAdmin)
	users.DELETE("/:id", userHandler.Delete, adminOnly)
	users.POST("/:id/roles/:role", userHandler.AssignRole, adminOnly)
	users.DELETE("/:id/roles/:role", userHandler.RemoveRole, adminOnly)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler(d.Health)
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestContext attaches a logger tagged with the request id to the request
// context, where services and the error handler pick it up.
func requestContext(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			c.SetRequest(req.WithContext(logger.WithRequest(req.Context(), log, id)))
			return next(c)
		}
	}
}

// requestLogger logs one line per request. Only the path is logged so query
// string tokens never reach the log.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			l := logger.From(c.Request().Context(), log)
			evt := l.Info()
			if v.Status >= 500 {
				evt = l.Error()
			}
			evt.
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
