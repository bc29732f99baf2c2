package handlers

import (
	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/api/handlers/common"
	"github/chapool/wallet-broker/internal/api/handlers/ports"
	"github/chapool/wallet-broker/internal/api/handlers/requests"
	"github/chapool/wallet-broker/internal/api/handlers/transactions"
)

func AttachAllRoutes(s *api.Server) {
	// attach our routes
	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetReadyRoute(s),
		ports.GetWSRoute(s),
		requests.GetRequestsRoute(s),
		requests.GetRequestRoute(s),
		requests.PostApproveRoute(s),
		requests.PostRejectRoute(s),
		transactions.GetTransactionRoute(s),
		transactions.PostRecheckRoute(s),
	}
}
