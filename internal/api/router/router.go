package router

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/api/handlers"
	"github/chapool/wallet-broker/internal/api/httperrors"
	"github/chapool/wallet-broker/internal/api/middleware"
	"github/chapool/wallet-broker/internal/auth"
)

func Init(s *api.Server) {
	s.Echo = echo.New()

	s.Echo.Debug = false
	s.Echo.HideBanner = true
	s.Echo.Logger.SetOutput(&echoLogWriter{})
	s.Echo.HTTPErrorHandler = httperrors.HTTPErrorHandler

	// ---
	// General middleware
	s.Echo.Pre(echoMiddleware.RemoveTrailingSlash())
	s.Echo.Use(echoMiddleware.Recover())
	s.Echo.Use(echoMiddleware.RequestID())
	s.Echo.Use(middleware.LoggerWithConfig(s.Config.Logger.RequestLevel))
	s.Echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "wallet_broker",
		Subsystem:  "http",
		Registerer: s.Metrics.Registry,
		Skipper: func(c echo.Context) bool {
			// websocket connections live as long as their session
			return c.Path() == "/ws"
		},
	}))

	approver := auth.ApproverKeyAuth(s.Config.Echo.ApproverToken)

	s.Router = &api.Router{
		Routes:            nil, // will be populated by handlers.AttachAllRoutes(s)
		Root:              s.Echo.Group(""),
		Management:        s.Echo.Group("/-"),
		APIV1Requests:     s.Echo.Group("/api/v1/requests", approver),
		APIV1Transactions: s.Echo.Group("/api/v1/transactions", approver),
	}

	s.Router.Management.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: s.Metrics.Registry,
	}))

	// ---
	// Finally attach our handlers
	handlers.AttachAllRoutes(s)
}

// echoLogWriter forwards echo's own log output to zerolog.
type echoLogWriter struct{}

func (echoLogWriter) Write(p []byte) (int, error) {
	log.Debug().Str("component", "echo").Msg(string(p))
	return len(p), nil
}
