package common

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
)

func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

// Liveness check
// This endpoint returns 200 while the process can still reach its storage. Failing it
// should restart the instance.
func getHealthyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), s.Config.Management.LivenessTimeout)
		defer cancel()

		errs := ProbeLiveness(ctx, s)
		if len(errs) == 0 {
			return c.String(http.StatusOK, "Healthy.")
		}

		var b strings.Builder
		for _, err := range errs {
			b.WriteString(err.Error())
			b.WriteString("\n")
		}

		return c.String(statusNotReady, b.String())
	}
}
