package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/util"
)

func GetRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Requests.GET("/:id", getRequestHandler(s))
}

func getRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		req, err := s.Broker.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}

		return util.Return(c, http.StatusOK, req)
	}
}
