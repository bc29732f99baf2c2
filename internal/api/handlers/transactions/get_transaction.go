package transactions

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/util"
)

func GetTransactionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Transactions.GET("/:hash", getTransactionHandler(s))
}

func getTransactionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		rec, err := s.Watcher.Get(c.Request().Context(), c.Param("hash"))
		if err != nil {
			return err
		}

		return util.Return(c, http.StatusOK, rec)
	}
}
