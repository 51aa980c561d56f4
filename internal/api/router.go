// Package api is the HTTP surface of the reference auth server.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/prontuario/proamp/docs"
	"github.com/prontuario/proamp/internal/api/handler"
	"github.com/prontuario/proamp/internal/api/middleware"
	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

// Defaults for login throttling, per client IP.
const (
	DefaultLoginRate  = 0.2
	DefaultLoginBurst = 5
)

// Deps are the collaborators and settings the router wires together.
type Deps struct {
	Auth        ports.AuthService
	Log         zerolog.Logger
	Cookie      handler.CookieOptions
	CORSOrigins []string
	// LoginRate is the sustained number of login attempts per second allowed
	// for one client IP; LoginBurst the number allowed at once.
	LoginRate  float64
	LoginBurst int
	Readiness  map[string]handler.Pinger
	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "proamp",
		Subsystem:  "http",
		Registerer: d.Registerer,
		Skipper:    skipInfra,
	}))
	if len(d.CORSOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAccept, "X-CSRFToken"},
			AllowCredentials: true,
		}))
	}
	e.Use(echomiddleware.CSRFWithConfig(echomiddleware.CSRFConfig{
		Skipper:        skipInfra,
		TokenLookup:    "header:X-CSRFToken",
		ContextKey:     handler.CSRFContextKey,
		CookieName:     "csrftoken",
		CookiePath:     "/",
		CookieDomain:   d.Cookie.Domain,
		CookieSecure:   d.Cookie.Secure,
		CookieSameSite: http.SameSiteLaxMode,
		CookieMaxAge:   int((365 * 24 * time.Hour).Seconds()),
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(d.Auth, d.Cookie, d.Log)
	userHandler := handler.NewUserHandler(d.Auth, d.Log)
	session := middleware.Session(d.Auth)

	// --- Auth routes ---
	e.GET("/csrf/", authHandler.CSRF)
	e.POST("/login/", authHandler.Login, loginLimiter(d.LoginRate, d.LoginBurst))
	e.POST("/logout/", authHandler.Logout)
	e.GET("/check-auth/", authHandler.CheckAuth)

	// --- User routes (session required) ---
	users := e.Group("/api/auth/users", session)
	users.GET("/me/", userHandler.Me)
	users.PATCH("/me/", userHandler.UpdateMe)
	users.POST("/set-password/", userHandler.SetPassword)
	users.GET("/managerview/", userHandler.HealthProfessionals, middleware.RBAC(domain.RoleManager))

	// --- Health probes, metrics and docs (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(d.Readiness)

	e.GET("/health", healthHandler.Liveness)           // liveness: is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: d.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func skipInfra(c echo.Context) bool {
	p := c.Request().URL.Path
	return strings.HasPrefix(p, "/health") || p == "/metrics" || strings.HasPrefix(p, "/swagger/")
}

// loginLimiter throttles login attempts per client IP.
func loginLimiter(r float64, burst int) echo.MiddlewareFunc {
	if r <= 0 {
		r = DefaultLoginRate
	}
	if burst <= 0 {
		burst = DefaultLoginBurst
	}
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(r),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
		},
	})
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		Skipper:      skipInfra,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
