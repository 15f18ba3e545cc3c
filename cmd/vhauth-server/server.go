package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth"
	"github.com/virtualhospital/vhauth/metrics/export/prometheus"
	"github.com/virtualhospital/vhauth/middleware"
	"github.com/virtualhospital/vhauth/security"
)

const version = "0.1.0"

// serverOptions carries the deployment-specific parts of the HTTP surface.
type serverOptions struct {
	// AllowedOrigins are the browser origins granted credentialed CORS.
	AllowedOrigins []string
	// Identity enables /firebase-login when non-nil.
	Identity identityVerifier
}

func newServer(engine *vhauth.Engine, users *userDirectory, logger zerolog.Logger, opts serverOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(requestLogger(logger))
	e.Use(echo.WrapMiddleware(middleware.Pipeline(engine)))
	if len(opts.AllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     opts.AllowedOrigins,
			AllowCredentials: true,
			AllowMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut,
				http.MethodDelete, http.MethodPatch, http.MethodOptions,
			},
			AllowHeaders: []string{
				echo.HeaderContentType, echo.HeaderAuthorization,
				engine.Config().CSRF.HeaderName, "X-Requested-With",
			},
			ExposeHeaders: []string{echo.HeaderXRequestID},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", echo.WrapHandler(prometheus.NewPrometheusExporter(engine).Handler()))

	h := &authHandler{engine: engine, users: users, logger: logger}
	wrap := echo.WrapMiddleware
	csrf := wrap(middleware.CSRF(engine))
	guard := wrap(middleware.Guard(engine))

	g := e.Group("/api/auth", wrap(middleware.RateLimit(engine, vhauth.RateAPI)))
	g.GET("/csrf-token", echo.WrapHandler(middleware.CSRFTokenHandler(engine)))
	g.POST("/register", h.register,
		wrap(middleware.RateLimit(engine, vhauth.RateRegister)),
		wrap(middleware.Validate(engine, security.RegisterRules())),
		csrf,
	)
	g.POST("/login", h.login,
		wrap(middleware.RateLimit(engine, vhauth.RateLogin)),
		wrap(middleware.Validate(engine, security.LoginRules())),
		csrf,
	)
	g.POST("/refresh", h.refresh, wrap(middleware.RateLimit(engine, vhauth.RateRefresh)))
	g.POST("/logout", h.logout, guard)
	g.POST("/logout-all", h.logoutAll, guard)
	g.GET("/sessions", h.sessions, guard)
	if opts.Identity != nil {
		h.identity = opts.Identity
		g.POST("/firebase-login", h.socialLogin,
			wrap(middleware.RateLimit(engine, vhauth.RateLogin)),
			wrap(middleware.Validate(engine, security.FirebaseLoginRules())),
		)
	}

	return e
}

// requestLogger bridges echo's request logger to zerolog.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Status >= http.StatusInternalServerError || v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
