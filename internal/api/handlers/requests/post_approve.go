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

func PostApproveRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Requests.POST("/:id/approve", postApproveHandler(s))
}

// postApproveHandler approves a pending request. The body carries the approval (password,
// external signature, gas settings or device error); the password is used for this call only.
func postApproveHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body router.ApproveParams
		if err := util.BindBody(c, &body); err != nil {
			log.Debug().Err(err).Msg("Failed to bind approve body")
			return httperrors.ErrBadRequestMalformedBody
		}

		approval, err := body.Approval()
		if err != nil {
			return err
		}

		id := c.Param("id")
		req, err := s.Broker.Resolve(ctx, id, request.Approve(approval))
		if err != nil {
			log.Debug().Err(err).Str("request_id", id).Msg("Approval failed")
			return err
		}

		return util.Return(c, http.StatusOK, &router.ResolveResult{
			ID:     req.ID,
			Status: req.Status,
			Reason: req.Reason,
			Result: req.Result,
		})
	}
}
