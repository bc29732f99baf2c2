package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/request"
)

type ListResponse struct {
	Requests []*request.Request `json:"requests"`
}

func GetRequestsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Requests.GET("", getRequestsHandler(s))
}

func getRequestsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		pending, err := s.Broker.Pending(ctx)
		if err != nil {
			util.LogFromContext(ctx).Debug().Err(err).Msg("Failed to list pending requests")
			return err
		}

		if pending == nil {
			pending = []*request.Request{}
		}

		return util.Return(c, http.StatusOK, &ListResponse{Requests: pending})
	}
}
