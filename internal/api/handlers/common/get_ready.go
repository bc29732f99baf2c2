package common

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/util"
)

// statusNotReady is what load balancers in front of the broker treat as "origin down".
const statusNotReady = 521

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// Readiness check
// This endpoint returns 200 when our Service is ready to serve traffic (i.e. respond to queries).
// Does read-only probes apart from the general server ready state.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), s.Config.Management.ReadinessTimeout)
		defer cancel()

		if errs := ProbeReadiness(ctx, s); len(errs) > 0 {
			log := util.LogFromContext(ctx)
			for _, err := range errs {
				log.Warn().Err(err).Msg("Readiness probe failed")
			}

			return c.String(statusNotReady, "Not ready.")
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
