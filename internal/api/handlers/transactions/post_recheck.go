package transactions

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/util"
)

func PostRecheckRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Transactions.POST("/:hash/recheck", postRecheckHandler(s))
}

// postRecheckHandler restarts tracking of a transaction left in broadcast, e.g. after the
// watcher gave up on an unreachable node.
func postRecheckHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		hash := c.Param("hash")

		if err := s.Watcher.Recheck(ctx, hash); err != nil {
			util.LogFromContext(ctx).Debug().Err(err).Str("hash", hash).Msg("Recheck failed")
			return err
		}

		rec, err := s.Watcher.Get(ctx, hash)
		if err != nil {
			return err
		}

		return util.Return(c, http.StatusAccepted, rec)
	}
}
