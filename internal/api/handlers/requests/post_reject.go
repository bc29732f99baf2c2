package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/api/httperrors"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/router"
)

func PostRejectRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Requests.POST("/:id/reject", postRejectHandler(s))
}

func postRejectHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body router.RejectParams
		if err := util.BindBody(c, &body); err != nil {
			return httperrors.ErrBadRequestMalformedBody
		}

		req, err := s.Broker.Resolve(ctx, c.Param("id"), request.Reject(body.Reason))
		if err != nil {
			return err
		}

		return util.Return(c, http.StatusOK, &router.ResolveResult{
			ID:     req.ID,
			Status: req.Status,
			Reason: req.Reason,
		})
	}
}
